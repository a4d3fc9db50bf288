package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"course-marketplace/internal/checkout"

	"github.com/gin-gonic/gin"
)

// Status maps checkout errors to HTTP status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, checkout.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrInvalidState), errors.Is(err, checkout.ErrAlreadyEnrolled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Failure writes {success:false, message}. Internal details are logged and
// replaced by a generic message.
func Failure(c *gin.Context, log *slog.Logger, err error) {
	status := Status(err)
	msg := err.Error()

	switch status {
	case http.StatusInternalServerError:
		log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		msg = "Internal server error"
	case http.StatusBadGateway:
		msg = "Payment provider unavailable, please try again"
	case http.StatusConflict:
		if errors.Is(err, checkout.ErrInvalidState) {
			log.Error("invalid purchase state", slog.String("path", c.FullPath()), slog.Any("error", err))
		}
	}

	c.JSON(status, gin.H{"success": false, "message": msg})
}
