package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-marketplace/internal/domain/payments"
)

// FakeGateway is an in-memory payments.Gateway.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*payments.Session
	seq      int

	CreateErr error
	GetErr    error
	// GetDelay makes GetSession block, honouring ctx.
	GetDelay time.Duration

	Requests []payments.SessionRequest
	GetCalls int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{sessions: map[string]*payments.Session{}}
}

func (g *FakeGateway) Name() string { return "fake" }

func (g *FakeGateway) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Requests = append(g.Requests, req)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.seq++
	ref := fmt.Sprintf("cs_fake_%d", g.seq)
	s := &payments.Session{
		Provider:   "fake",
		Ref:        ref,
		URL:        "https://pay.example/" + ref,
		PurchaseID: req.PurchaseID,
		State:      payments.StateUnpaid,
	}
	g.sessions[ref] = s
	cp := *s
	return &cp, nil
}

func (g *FakeGateway) GetSession(ctx context.Context, ref string) (*payments.Session, error) {
	g.mu.Lock()
	g.GetCalls++
	delay, getErr := g.GetDelay, g.GetErr
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", payments.ErrSessionNotFound, ref)
	}
	cp := *s
	return &cp, nil
}

// Put stores or replaces a session, for tests that start from a known state.
func (g *FakeGateway) Put(s payments.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := s
	g.sessions[s.Ref] = &cp
}

func (g *FakeGateway) SetState(ref string, state payments.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[ref]; ok {
		s.State = state
	}
}
