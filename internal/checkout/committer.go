package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"course-marketplace/database"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/outbox"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/metrics"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommitResult struct {
	AlreadyCompleted bool
}

type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

var DefaultRetry = RetryConfig{Attempts: 4, Delay: 50 * time.Millisecond, MaxDelay: time.Second}

// Committer moves purchases out of pending. The status compare-and-set is the
// only gate: whoever flips pending to completed writes the enrollment and the
// outbox event in the same transaction, everybody else writes nothing.
type Committer struct {
	db    *gorm.DB
	retry RetryConfig
	log   *slog.Logger
}

func NewCommitter(db *gorm.DB, retryCfg RetryConfig, log *slog.Logger) *Committer {
	if retryCfg.Attempts == 0 {
		retryCfg = DefaultRetry
	}
	return &Committer{db: db, retry: retryCfg, log: log}
}

// Commit is safe to call any number of times, concurrently, for the same
// purchase. A purchase that is already completed returns AlreadyCompleted
// and no error.
func (c *Committer) Commit(ctx context.Context, purchaseID string) (CommitResult, error) {
	start := time.Now()
	defer func() { metrics.CommitDuration.Observe(time.Since(start).Seconds()) }()

	var result CommitResult
	var committed purchases.Purchase

	err := c.withRetry(ctx, func() error {
		result = CommitResult{}
		return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := time.Now().UTC()
			res := tx.Model(&purchases.Purchase{}).
				Where("id = ? AND status = ?", purchaseID, purchases.StatusPending).
				Updates(map[string]any{
					"status":       purchases.StatusCompleted,
					"completed_at": now,
					"updated_at":   now,
				})
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected == 0 {
				status, err := purchaseStatus(tx, purchaseID)
				if err != nil {
					return err
				}
				if status == purchases.StatusCompleted {
					result.AlreadyCompleted = true
					return nil
				}
				return fmt.Errorf("%w: purchase %s is %s", ErrInvalidState, purchaseID, status)
			}

			if err := tx.First(&committed, "id = ?", purchaseID).Error; err != nil {
				return err
			}
			if _, err := insertEnrollment(tx, committed); err != nil {
				return fmt.Errorf("insert enrollment: %w", err)
			}
			if err := insertCompletedEvent(tx, committed, now); err != nil {
				return fmt.Errorf("insert outbox message: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		metrics.CommitResults.WithLabelValues("error").Inc()
		return CommitResult{}, err
	}

	if result.AlreadyCompleted {
		metrics.CommitResults.WithLabelValues("already_completed").Inc()
		c.log.Debug("purchase already completed", slog.String("purchase_id", purchaseID))
		return result, nil
	}

	metrics.CommitResults.WithLabelValues("completed").Inc()
	c.log.Info("purchase completed, user enrolled",
		slog.String("purchase_id", purchaseID),
		slog.Uint64("user_id", uint64(committed.UserID)),
		slog.Uint64("course_id", uint64(committed.CourseID)))
	return result, nil
}

// Fail moves a pending purchase to failed. It reports whether this call made
// the transition; a terminal purchase is left as it is.
func (c *Committer) Fail(ctx context.Context, purchaseID string) (bool, error) {
	var changed bool
	err := c.withRetry(ctx, func() error {
		now := time.Now().UTC()
		res := c.db.WithContext(ctx).Model(&purchases.Purchase{}).
			Where("id = ? AND status = ?", purchaseID, purchases.StatusPending).
			Updates(map[string]any{
				"status":     purchases.StatusFailed,
				"failed_at":  now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1
		if changed {
			return nil
		}
		_, err := purchaseStatus(c.db.WithContext(ctx), purchaseID)
		return err
	})
	if err != nil {
		return false, err
	}
	if changed {
		metrics.CommitResults.WithLabelValues("failed").Inc()
		c.log.Info("purchase failed", slog.String("purchase_id", purchaseID))
	}
	return changed, nil
}

// EnsureEnrollment inserts the enrollment pair for a completed purchase if it
// is missing and reports whether it had to.
func (c *Committer) EnsureEnrollment(ctx context.Context, p purchases.Purchase) (bool, error) {
	if p.Status != purchases.StatusCompleted {
		return false, fmt.Errorf("%w: purchase %s is %s", ErrInvalidState, p.ID, p.Status)
	}
	var inserted bool
	err := c.withRetry(ctx, func() error {
		var err error
		inserted, err = insertEnrollment(c.db.WithContext(ctx), p)
		return err
	})
	return inserted, err
}

func (c *Committer) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.retry.Attempts),
		retry.Delay(c.retry.Delay),
		retry.MaxDelay(c.retry.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(database.IsRetryableError),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying store write", slog.Uint64("attempt", uint64(n+1)), slog.Any("error", err))
		}),
	)
}

func purchaseStatus(db *gorm.DB, purchaseID string) (purchases.Status, error) {
	var p purchases.Purchase
	if err := db.Select("id", "status").First(&p, "id = ?", purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: purchase %s", ErrNotFound, purchaseID)
		}
		return "", err
	}
	return p.Status, nil
}

// insertEnrollment adds the (user, course) pair. The composite key makes a
// repeated insert a no-op.
func insertEnrollment(db *gorm.DB, p purchases.Purchase) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollments.Enrollment{
		UserID:     p.UserID,
		CourseID:   p.CourseID,
		PurchaseID: p.ID,
	})
	return res.RowsAffected == 1, res.Error
}

func insertCompletedEvent(tx *gorm.DB, p purchases.Purchase, completedAt time.Time) error {
	payload, err := json.Marshal(outbox.EnrollmentCompleted{
		PurchaseID:  p.ID,
		UserID:      p.UserID,
		CourseID:    p.CourseID,
		Amount:      p.Amount.StringFixed(purchases.MinorUnitExponent(p.Currency)),
		Currency:    p.Currency,
		CompletedAt: completedAt,
	})
	if err != nil {
		return err
	}
	return tx.Create(&outbox.Message{
		ID:      uuid.NewString(),
		Type:    outbox.TypeEnrollmentCompleted,
		Key:     p.ID,
		Payload: datatypes.JSON(payload),
	}).Error
}
