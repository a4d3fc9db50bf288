package midtranswebhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/infra/midtrans"
	"course-marketplace/internal/metrics"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 65536

type Handler struct {
	Settler   *checkout.Settler
	ServerKey string
	Log       *slog.Logger
}

// POST /webhook/midtrans
func (h *Handler) MidtransNotification(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error reading request body"})
		return
	}

	var notif midtrans.Notification
	if err := json.Unmarshal(raw, &notif); err != nil || notif.OrderID == "" {
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if !notif.VerifySignature(h.ServerKey) {
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, "unauthenticated").Inc()
		h.Log.Warn("midtrans signature verification failed",
			slog.String("remote_addr", c.ClientIP()),
			slog.String("order_id", notif.OrderID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	log := h.Log.With(
		slog.String("order_id", notif.OrderID),
		slog.String("transaction_status", notif.TransactionStatus))

	result, err := h.Settler.Settle(c.Request.Context(), notif.Session())
	switch {
	case err == nil:
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, string(result)).Inc()
		c.JSON(http.StatusOK, gin.H{"status": result})
	case errors.Is(err, checkout.ErrInvalidState), errors.Is(err, checkout.ErrNotFound):
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, "rejected").Inc()
		log.Error("notification rejected", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	default:
		metrics.WebhookEvents.WithLabelValues(midtrans.ProviderName, "error").Inc()
		log.Error("notification processing failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
	}
}
