package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"course-marketplace/internal/domain/payments"
	"course-marketplace/internal/domain/purchases"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
)

const (
	ProviderName = "stripe"

	// MetadataPurchaseID is the session metadata key correlating back to a Purchase.
	MetadataPurchaseID = "purchaseId"
)

// Gateway talks to Stripe Checkout through one client built at startup.
type Gateway struct {
	api *client.API
}

func NewGateway(secretKey string) *Gateway {
	return &Gateway{api: client.New(secretKey, nil)}
}

func (g *Gateway) Name() string { return ProviderName }

func (g *Gateway) CreateSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(req.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(req.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.PurchaseID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Title),
					},
					UnitAmount: stripe.Int64(purchases.ToMinorUnits(req.Amount, req.Currency)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataPurchaseID: req.PurchaseID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataPurchaseID, req.PurchaseID)
	// a retried initiation for the same purchase gets the same session back
	params.SetIdempotencyKey("checkout-" + req.PurchaseID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return SessionFromCheckout(s), nil
}

func (g *Gateway) GetSession(ctx context.Context, ref string) (*payments.Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(ref, params)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", payments.ErrSessionNotFound, ref)
		}
		return nil, fmt.Errorf("get checkout session %s: %w", ref, err)
	}
	return SessionFromCheckout(s), nil
}

func isNotFound(err error) bool {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == stripe.ErrorCodeResourceMissing || serr.HTTPStatusCode == http.StatusNotFound
}
