package stripewebhooks

import (
	"encoding/json"
	"log/slog"
	"net/http"

	stripeinfra "course-marketplace/internal/infra/stripe"
	"course-marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
)

func parseSession(c *gin.Context, event stripe.Event) (*stripe.CheckoutSession, bool) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		metrics.WebhookEvents.WithLabelValues("stripe", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse session"})
		return nil, false
	}
	return &session, true
}

// A completed session may still be unpaid (delayed payment methods); the
// resolver only lets payment_status=paid through.
func (h *Handler) handleSessionSettled(c *gin.Context, log *slog.Logger, event stripe.Event) {
	session, ok := parseSession(c, event)
	if !ok {
		return
	}
	log = log.With(slog.String("session_ref", session.ID))

	result, err := h.Settler.Settle(c.Request.Context(), stripeinfra.SessionFromCheckout(session))
	ack(c, log, result, err)
}

func (h *Handler) handleSessionEnded(c *gin.Context, log *slog.Logger, event stripe.Event) {
	session, ok := parseSession(c, event)
	if !ok {
		return
	}
	log = log.With(slog.String("session_ref", session.ID))

	result, err := h.Settler.Expire(c.Request.Context(), session.Metadata[stripeinfra.MetadataPurchaseID])
	ack(c, log, result, err)
}
