package stripewebhooks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75/webhook"
)

const maxBodyBytes = 65536

type Handler struct {
	Settler       *checkout.Settler
	WebhookSecret string
	Log           *slog.Logger
}

// POST /webhook
//
// Must be mounted ahead of any body-rewriting middleware: the signature is
// computed over the exact bytes Stripe sent.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("stripe", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		if isSignatureError(err) {
			metrics.WebhookEvents.WithLabelValues("stripe", "unauthenticated").Inc()
			h.Log.Warn("stripe signature verification failed",
				slog.String("remote_addr", c.ClientIP()),
				slog.Any("error", err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature verification failed"})
			return
		}
		metrics.WebhookEvents.WithLabelValues("stripe", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
		return
	}

	log := h.Log.With(slog.String("event_id", event.ID), slog.String("event_type", string(event.Type)))

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		h.handleSessionSettled(c, log, event)
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		h.handleSessionEnded(c, log, event)
	default:
		// Acknowledge unknown events to avoid retries
		metrics.WebhookEvents.WithLabelValues("stripe", "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// ack writes the 200 that stops provider retries, or a 500 when the store
// failed and a redelivery could still succeed.
func ack(c *gin.Context, log *slog.Logger, result checkout.SettleResult, err error) {
	switch {
	case err == nil:
		metrics.WebhookEvents.WithLabelValues("stripe", string(result)).Inc()
		c.JSON(http.StatusOK, gin.H{"status": result})
	case errors.Is(err, checkout.ErrInvalidState), errors.Is(err, checkout.ErrNotFound):
		metrics.WebhookEvents.WithLabelValues("stripe", "rejected").Inc()
		log.Error("webhook rejected", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	default:
		metrics.WebhookEvents.WithLabelValues("stripe", "error").Inc()
		log.Error("webhook processing failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
	}
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
