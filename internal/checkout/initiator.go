package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"course-marketplace/internal/domain/courses"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/payments"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/domain/users"
	"course-marketplace/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderFree marks purchases that cost nothing and never reach a payment
// provider.
const ProviderFree = "free"

type InitiatorConfig struct {
	FrontendURL     string
	Currency        string
	ProviderTimeout time.Duration
}

// Initiator opens a pending purchase and a provider checkout session for it.
type Initiator struct {
	db        *gorm.DB
	gateway   payments.Gateway
	committer *Committer
	cfg       InitiatorConfig
	log       *slog.Logger
}

func NewInitiator(db *gorm.DB, gateway payments.Gateway, committer *Committer, cfg InitiatorConfig, log *slog.Logger) *Initiator {
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Initiator{db: db, gateway: gateway, committer: committer, cfg: cfg, log: log}
}

type InitiateResult struct {
	PurchaseID  string
	RedirectURL string
}

// Initiate creates Purchase{pending} and only then asks the provider for a
// session, so every provider session has a purchase to correlate with. When
// the provider call fails the purchase stays pending. A zero amount skips the
// provider and is committed right away.
func (i *Initiator) Initiate(ctx context.Context, userID, courseID uint) (*InitiateResult, error) {
	if courseID == 0 {
		return nil, fmt.Errorf("%w: courseId is required", ErrValidation)
	}

	var course courses.Course
	err := i.db.WithContext(ctx).
		Where("id = ? AND is_published = ?", courseID, true).
		First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: course %d", ErrNotFound, courseID)
		}
		return nil, fmt.Errorf("load course %d: %w", courseID, err)
	}

	var user users.User
	if err := i.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	var enrolled int64
	if err := i.db.WithContext(ctx).Model(&enrollments.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&enrolled).Error; err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled > 0 {
		return nil, fmt.Errorf("%w: user %d in course %d", ErrAlreadyEnrolled, userID, courseID)
	}

	amount, err := purchases.ComputeAmount(course.Price, course.DiscountPercent, i.cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: course %d: %v", ErrInvalidState, courseID, err)
	}

	purchase := purchases.Purchase{
		ID:       uuid.NewString(),
		CourseID: course.ID,
		UserID:   user.ID,
		Amount:   amount,
		Currency: i.cfg.Currency,
		Status:   purchases.StatusPending,
		Provider: i.gateway.Name(),
	}
	if amount.IsZero() {
		purchase.Provider = ProviderFree
	}
	if err := i.db.WithContext(ctx).Create(&purchase).Error; err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	log := i.log.With(
		slog.String("purchase_id", purchase.ID),
		slog.Uint64("user_id", uint64(user.ID)),
		slog.Uint64("course_id", uint64(course.ID)),
	)

	if amount.IsZero() {
		return i.completeFree(ctx, purchase, log)
	}

	pctx, cancel := context.WithTimeout(ctx, i.cfg.ProviderTimeout)
	defer cancel()

	session, err := i.gateway.CreateSession(pctx, payments.SessionRequest{
		PurchaseID:    purchase.ID,
		CourseID:      course.ID,
		Title:         course.Title,
		Amount:        amount,
		Currency:      i.cfg.Currency,
		CustomerEmail: user.Email,
		SuccessURL:    i.cfg.FrontendURL + "/loading/my-enrollments",
		CancelURL:     fmt.Sprintf("%s/course/%d", i.cfg.FrontendURL, course.ID),
	})
	if err != nil {
		metrics.PurchasesInitiated.WithLabelValues("provider_error").Inc()
		log.Error("payment session creation failed, purchase left pending", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	// The session is already correlated through its metadata; the stored ref
	// only lets the reconciliation sweep find it.
	if err := i.db.WithContext(ctx).Model(&purchases.Purchase{}).
		Where("id = ?", purchase.ID).
		Update("session_ref", session.Ref).Error; err != nil {
		metrics.PurchasesInitiated.WithLabelValues("session_ref_not_stored").Inc()
		log.Error("failed to store session ref, reconciliation cannot find this session",
			slog.String("session_ref", session.Ref), slog.Any("error", err))
	}

	metrics.PurchasesInitiated.WithLabelValues("ok").Inc()
	log.Info("purchase initiated", slog.String("amount", amount.StringFixed(purchases.MinorUnitExponent(i.cfg.Currency))), slog.String("session_ref", session.Ref))

	return &InitiateResult{PurchaseID: purchase.ID, RedirectURL: session.URL}, nil
}

// completeFree commits a zero-amount purchase through the regular commit path,
// so it gets the same enrollment and outbox event as a paid one.
func (i *Initiator) completeFree(ctx context.Context, purchase purchases.Purchase, log *slog.Logger) (*InitiateResult, error) {
	if _, err := i.committer.Commit(ctx, purchase.ID); err != nil {
		metrics.PurchasesInitiated.WithLabelValues("free_error").Inc()
		log.Error("free purchase commit failed", slog.Any("error", err))
		return nil, fmt.Errorf("commit free purchase: %w", err)
	}

	metrics.PurchasesInitiated.WithLabelValues("free").Inc()
	log.Info("free purchase enrolled")
	return &InitiateResult{PurchaseID: purchase.ID, RedirectURL: i.cfg.FrontendURL + "/my-enrollments"}, nil
}
