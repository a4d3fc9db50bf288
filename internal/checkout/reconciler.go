package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"course-marketplace/internal/domain/payments"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/metrics"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

type ReconcilerConfig struct {
	Schedule     string
	PendingAfter time.Duration
	BatchSize    int
	// RunTimeout bounds one sweep started by the scheduler.
	RunTimeout time.Duration
}

// Reconciler repairs what the triggers left behind: completed purchases whose
// enrollment is missing, and stale pending purchases whose provider session
// has since settled.
type Reconciler struct {
	db        *gorm.DB
	resolver  *Resolver
	committer *Committer
	cfg       ReconcilerConfig
	log       *slog.Logger
	cron      *cron.Cron
}

func NewReconciler(db *gorm.DB, resolver *Resolver, committer *Committer, cfg ReconcilerConfig, log *slog.Logger) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 4 * time.Minute
	}
	return &Reconciler{db: db, resolver: resolver, committer: committer, cfg: cfg, log: log}
}

type Report struct {
	EnrollmentsRepaired int `json:"enrollmentsRepaired"`
	Completed           int `json:"completed"`
	Failed              int `json:"failed"`
	StillPending        int `json:"stillPending"`
	WithoutSession      int `json:"withoutSession"`
	Errors              int `json:"errors"`
}

// Run performs one sweep. Errors on single purchases are counted and logged;
// only a failing query aborts the sweep.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var rep Report

	if err := r.repairEnrollments(ctx, &rep); err != nil {
		return rep, err
	}
	if err := r.settleStalePending(ctx, &rep); err != nil {
		return rep, err
	}

	r.log.Info("reconciliation finished",
		slog.Int("enrollments_repaired", rep.EnrollmentsRepaired),
		slog.Int("completed", rep.Completed),
		slog.Int("failed", rep.Failed),
		slog.Int("still_pending", rep.StillPending),
		slog.Int("without_session", rep.WithoutSession),
		slog.Int("errors", rep.Errors))
	return rep, nil
}

func (r *Reconciler) repairEnrollments(ctx context.Context, rep *Report) error {
	var missing []purchases.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ?", purchases.StatusCompleted).
		Where("NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.user_id = purchases.user_id AND e.course_id = purchases.course_id)").
		Order("completed_at").
		Limit(r.cfg.BatchSize).
		Find(&missing).Error
	if err != nil {
		return fmt.Errorf("find completed purchases without enrollment: %w", err)
	}

	for _, p := range missing {
		inserted, err := r.committer.EnsureEnrollment(ctx, p)
		if err != nil {
			rep.Errors++
			r.log.Error("enrollment repair failed", slog.String("purchase_id", p.ID), slog.Any("error", err))
			continue
		}
		if inserted {
			rep.EnrollmentsRepaired++
			metrics.ReconcileRepairs.WithLabelValues("enrollment").Inc()
			r.log.Warn("repaired missing enrollment", slog.String("purchase_id", p.ID))
		}
	}
	return nil
}

func (r *Reconciler) settleStalePending(ctx context.Context, rep *Report) error {
	cutoff := time.Now().UTC().Add(-r.cfg.PendingAfter)

	var noSession int64
	if err := r.db.WithContext(ctx).Model(&purchases.Purchase{}).
		Where("status = ? AND session_ref IS NULL AND created_at < ?", purchases.StatusPending, cutoff).
		Count(&noSession).Error; err != nil {
		return fmt.Errorf("count pending purchases without session: %w", err)
	}
	rep.WithoutSession = int(noSession)

	var stale []purchases.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND session_ref IS NOT NULL AND created_at < ?", purchases.StatusPending, cutoff).
		Order("created_at").
		Limit(r.cfg.BatchSize).
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("find stale pending purchases: %w", err)
	}

	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.settle(ctx, p, rep)
	}
	return nil
}

func (r *Reconciler) settle(ctx context.Context, p purchases.Purchase, rep *Report) {
	log := r.log.With(slog.String("purchase_id", p.ID), slog.String("session_ref", *p.SessionRef))

	res, err := r.resolver.Resolve(ctx, *p.SessionRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			rep.StillPending++
			log.Warn("provider does not know the session of a pending purchase")
			return
		}
		rep.Errors++
		log.Error("resolve failed during reconciliation", slog.Any("error", err))
		return
	}

	switch {
	case res.Outcome == OutcomePaid:
		if res.PurchaseID != p.ID {
			rep.Errors++
			log.Error("session metadata points at another purchase", slog.String("metadata_purchase_id", res.PurchaseID))
			return
		}
		cr, err := r.committer.Commit(ctx, p.ID)
		if err != nil {
			rep.Errors++
			log.Error("commit failed during reconciliation", slog.Any("error", err))
			return
		}
		if !cr.AlreadyCompleted {
			rep.Completed++
			metrics.ReconcileRepairs.WithLabelValues("completed").Inc()
		}
	case res.State == payments.StateExpired || res.State == payments.StateFailed:
		changed, err := r.committer.Fail(ctx, p.ID)
		if err != nil {
			rep.Errors++
			log.Error("fail transition failed during reconciliation", slog.Any("error", err))
			return
		}
		if changed {
			rep.Failed++
			metrics.ReconcileRepairs.WithLabelValues("failed").Inc()
		}
	default:
		rep.StillPending++
	}
}

// Start schedules Run. Overlapping runs are skipped.
func (r *Reconciler) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RunTimeout)
		defer cancel()
		if _, err := r.Run(ctx); err != nil {
			r.log.Error("reconciliation failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", r.cfg.Schedule, err)
	}
	r.cron = c
	c.Start()
	r.log.Info("reconciler started", slog.String("schedule", r.cfg.Schedule), slog.Duration("pending_after", r.cfg.PendingAfter))
	return nil
}

// Stop halts the schedule and waits for a running sweep or ctx, whichever
// comes first.
func (r *Reconciler) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}
