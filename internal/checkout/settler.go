package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"course-marketplace/internal/domain/payments"
)

type SettleResult string

const (
	SettleCompleted        SettleResult = "completed"
	SettleAlreadyCompleted SettleResult = "already_completed"
	SettleNotPaid          SettleResult = "not_paid"
	SettleFailed           SettleResult = "failed"
	// SettleAccepted means the write outlived the ack window and is still
	// running detached from the request.
	SettleAccepted SettleResult = "accepted"
)

// Settler is the push path: a verified provider session is classified and
// then committed or failed, within a bounded acknowledgement window.
type Settler struct {
	resolver      *Resolver
	committer     *Committer
	ack           time.Duration
	commitTimeout time.Duration
	log           *slog.Logger

	inflight sync.WaitGroup
}

func NewSettler(resolver *Resolver, committer *Committer, ack, commitTimeout time.Duration, log *slog.Logger) *Settler {
	return &Settler{resolver: resolver, committer: committer, ack: ack, commitTimeout: commitTimeout, log: log}
}

// Settle returns the classification error as is (ErrInvalidState for a paid
// session that does not correlate). Commit errors within the ack window are
// returned; later ones are only logged.
func (s *Settler) Settle(ctx context.Context, session *payments.Session) (SettleResult, error) {
	res, err := s.resolver.Classify(ctx, session)
	if err != nil {
		return "", err
	}

	switch {
	case res.Outcome == OutcomePaid:
		return s.bounded(ctx, res.PurchaseID, func(ctx context.Context) (SettleResult, error) {
			cr, err := s.committer.Commit(ctx, res.PurchaseID)
			if err != nil {
				return "", err
			}
			if cr.AlreadyCompleted {
				return SettleAlreadyCompleted, nil
			}
			return SettleCompleted, nil
		})
	case res.PurchaseID != "" && (res.State == payments.StateExpired || res.State == payments.StateFailed):
		return s.bounded(ctx, res.PurchaseID, func(ctx context.Context) (SettleResult, error) {
			if _, err := s.committer.Fail(ctx, res.PurchaseID); err != nil {
				return "", err
			}
			return SettleFailed, nil
		})
	default:
		return SettleNotPaid, nil
	}
}

// Expire handles provider events that end a session without payment. The
// session carries no paid state, so only the purchase id matters.
func (s *Settler) Expire(ctx context.Context, purchaseID string) (SettleResult, error) {
	if purchaseID == "" {
		return SettleNotPaid, nil
	}
	return s.bounded(ctx, purchaseID, func(ctx context.Context) (SettleResult, error) {
		if _, err := s.committer.Fail(ctx, purchaseID); err != nil {
			return "", err
		}
		return SettleFailed, nil
	})
}

// bounded runs fn on a context detached from the request so it survives the
// response, waiting at most the ack window for its result.
func (s *Settler) bounded(ctx context.Context, purchaseID string, fn func(context.Context) (SettleResult, error)) (SettleResult, error) {
	type outcome struct {
		res SettleResult
		err error
	}
	done := make(chan outcome, 1)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		res, err := fn(wctx)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(s.ack)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		s.log.Warn("settlement outlived the ack window, continuing in background", slog.String("purchase_id", purchaseID))
		go func() {
			if o := <-done; o.err != nil {
				s.log.Error("background settlement failed", slog.String("purchase_id", purchaseID), slog.Any("error", o.err))
			}
		}()
		return SettleAccepted, nil
	}
}

// Wait blocks until detached settlements finish or ctx is done.
func (s *Settler) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
