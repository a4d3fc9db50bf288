package stripe

import (
	"testing"

	"course-marketplace/internal/domain/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v75"
)

func TestPaymentState(t *testing.T) {
	tests := []struct {
		name    string
		session *stripe.CheckoutSession
		want    payments.State
	}{
		{"nil session", nil, payments.StateUnpaid},
		{"paid", &stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid, Status: stripe.CheckoutSessionStatusComplete}, payments.StatePaid},
		{"open and unpaid", &stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid, Status: stripe.CheckoutSessionStatusOpen}, payments.StateUnpaid},
		{"expired", &stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid, Status: stripe.CheckoutSessionStatusExpired}, payments.StateExpired},
		{"no payment required is not paid", &stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusNoPaymentRequired, Status: stripe.CheckoutSessionStatusComplete}, payments.StateUnpaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PaymentState(tt.session))
		})
	}
}

func TestSessionFromCheckoutReadsPurchaseMetadata(t *testing.T) {
	s := SessionFromCheckout(&stripe.CheckoutSession{
		ID:            "cs_test_1",
		URL:           "https://checkout.stripe.com/c/pay/cs_test_1",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{MetadataPurchaseID: "p-1"},
	})

	assert.Equal(t, "stripe", s.Provider)
	assert.Equal(t, "cs_test_1", s.Ref)
	assert.Equal(t, "p-1", s.PurchaseID)
	assert.Equal(t, payments.StatePaid, s.State)

	noMeta := SessionFromCheckout(&stripe.CheckoutSession{ID: "cs_test_2"})
	assert.Empty(t, noMeta.PurchaseID)
}
