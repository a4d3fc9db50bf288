package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"course-marketplace/internal/api/respond"
	"course-marketplace/internal/checkout"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	DB        *gorm.DB
	Initiator *checkout.Initiator
	Resolver  *checkout.Resolver
	Committer *checkout.Committer
	Log       *slog.Logger
}

// POST /purchase
func (h *Handler) Purchase(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not identified"})
		return
	}

	var body struct {
		CourseID uint `json:"courseId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.CourseID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "courseId missing or invalid"})
		return
	}

	res, err := h.Initiator.Initiate(c.Request.Context(), userID, body.CourseID)
	if err != nil {
		respond.Failure(c, h.Log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "redirectUrl": res.RedirectURL, "purchaseId": res.PurchaseID})
}

// POST /verify-payment
//
// Called by the loading page after the provider redirects back. The provider
// query is bounded by the resolver timeout.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var body struct {
		SessionToken string `json:"sessionToken"`
		SuccessID    string `json:"success_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Malformed request body"})
		return
	}
	token := strings.TrimSpace(body.SessionToken)
	if token == "" {
		token = strings.TrimSpace(body.SuccessID)
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing session token"})
		return
	}

	ctx := c.Request.Context()
	res, err := h.Resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, checkout.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment session not found"})
			return
		}
		respond.Failure(c, h.Log, err)
		return
	}
	if res.Outcome != checkout.OutcomePaid {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Payment failed or pending"})
		return
	}

	cr, err := h.Committer.Commit(ctx, res.PurchaseID)
	if err != nil {
		respond.Failure(c, h.Log, err)
		return
	}

	msg := "Payment Successful, User Enrolled!"
	if cr.AlreadyCompleted {
		msg = "Payment already confirmed, you are enrolled"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "alreadyCompleted": cr.AlreadyCompleted})
}
