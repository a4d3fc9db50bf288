package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"course-marketplace/internal/domain/payments"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/metrics"

	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeNotPaid Outcome = "not_paid"
	OutcomeUnknown Outcome = "unknown"
)

// Resolution is a classified payment session. PurchaseID is set for paid
// outcomes and, when the metadata carries it, for not-paid ones.
type Resolution struct {
	Outcome    Outcome
	State      payments.State
	SessionRef string
	PurchaseID string
}

// Resolver classifies provider sessions. It never mutates state.
type Resolver struct {
	db      *gorm.DB
	gateway payments.Gateway
	timeout time.Duration
	log     *slog.Logger
}

func NewResolver(db *gorm.DB, gateway payments.Gateway, timeout time.Duration, log *slog.Logger) *Resolver {
	return &Resolver{db: db, gateway: gateway, timeout: timeout, log: log}
}

const maxSessionRefLen = 255

// Resolve queries the provider for ref. An unknown or malformed ref is
// OutcomeUnknown with ErrNotFound; a provider failure or timeout is
// ErrExternalService.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	if ref == "" || len(ref) > maxSessionRefLen || strings.ContainsAny(ref, " \t\r\n/") {
		metrics.ResolverOutcomes.WithLabelValues(string(OutcomeUnknown)).Inc()
		return &Resolution{Outcome: OutcomeUnknown, SessionRef: ref}, fmt.Errorf("%w: malformed payment session %q", ErrNotFound, ref)
	}

	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := r.gateway.GetSession(pctx, ref)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			metrics.ResolverOutcomes.WithLabelValues(string(OutcomeUnknown)).Inc()
			return &Resolution{Outcome: OutcomeUnknown, SessionRef: ref}, fmt.Errorf("%w: payment session %q", ErrNotFound, ref)
		}
		metrics.ResolverOutcomes.WithLabelValues("provider_error").Inc()
		r.log.Warn("payment provider query failed", slog.String("session_ref", ref), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	return r.Classify(ctx, session)
}

// Classify handles a session that is already trusted: fetched from the
// provider or taken from a verified webhook. Only a paid session that
// correlates to an existing purchase authorizes enrollment.
func (r *Resolver) Classify(ctx context.Context, session *payments.Session) (*Resolution, error) {
	res := &Resolution{
		Outcome:    OutcomeNotPaid,
		State:      session.State,
		SessionRef: session.Ref,
		PurchaseID: session.PurchaseID,
	}
	if session.State != payments.StatePaid {
		metrics.ResolverOutcomes.WithLabelValues(string(OutcomeNotPaid)).Inc()
		return res, nil
	}

	if session.PurchaseID == "" {
		metrics.ResolverOutcomes.WithLabelValues("invalid_state").Inc()
		r.log.Error("paid session without purchase metadata", slog.String("session_ref", session.Ref))
		return nil, fmt.Errorf("%w: paid session %s has no purchaseId metadata", ErrInvalidState, session.Ref)
	}

	var found int64
	if err := r.db.WithContext(ctx).Model(&purchases.Purchase{}).
		Where("id = ?", session.PurchaseID).
		Count(&found).Error; err != nil {
		return nil, fmt.Errorf("look up purchase %s: %w", session.PurchaseID, err)
	}
	if found == 0 {
		metrics.ResolverOutcomes.WithLabelValues("invalid_state").Inc()
		r.log.Error("paid session references unknown purchase",
			slog.String("session_ref", session.Ref),
			slog.String("purchase_id", session.PurchaseID))
		return nil, fmt.Errorf("%w: paid session %s references unknown purchase %s", ErrInvalidState, session.Ref, session.PurchaseID)
	}

	res.Outcome = OutcomePaid
	metrics.ResolverOutcomes.WithLabelValues(string(OutcomePaid)).Inc()
	return res, nil
}
