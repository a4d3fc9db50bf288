package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// State is the provider's payment state reduced to what enrollment cares about.
type State string

const (
	StatePaid    State = "paid"
	StateUnpaid  State = "unpaid"
	StateExpired State = "expired"
	StateFailed  State = "failed"
)

// ErrSessionNotFound is returned by a Gateway when the provider does not know
// the session reference. Any other error means the provider could not answer.
var ErrSessionNotFound = errors.New("payment session not found")

// Session is a provider checkout session as seen by this service. PurchaseID
// comes from the session metadata and is empty when the metadata is missing.
type Session struct {
	Provider   string
	Ref        string
	URL        string
	PurchaseID string
	State      State
}

// SessionRequest asks for a checkout session. SuccessURL is the bare return
// page; each gateway appends the session_id query its provider can fill in.
type SessionRequest struct {
	PurchaseID    string
	CourseID      uint
	Title         string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Gateway is the payment provider contract. Implementations hold one
// long-lived client configured at startup.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, ref string) (*Session, error)
}
