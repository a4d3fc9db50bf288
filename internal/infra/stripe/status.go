package stripe

import (
	"course-marketplace/internal/domain/payments"

	"github.com/stripe/stripe-go/v75"
)

// PaymentState reduces a Checkout Session to a payment state. Only
// payment_status=paid counts as paid; "no_payment_required" does not.
func PaymentState(s *stripe.CheckoutSession) payments.State {
	if s == nil {
		return payments.StateUnpaid
	}
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return payments.StatePaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return payments.StateExpired
	default:
		return payments.StateUnpaid
	}
}

// SessionFromCheckout maps a Checkout Session, fetched or pushed in an event.
func SessionFromCheckout(s *stripe.CheckoutSession) *payments.Session {
	return &payments.Session{
		Provider:   ProviderName,
		Ref:        s.ID,
		URL:        s.URL,
		PurchaseID: s.Metadata[MetadataPurchaseID],
		State:      PaymentState(s),
	}
}
