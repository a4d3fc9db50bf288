package billing

import (
	"net/http"
	"time"

	"course-marketplace/internal/domain/purchases"

	"github.com/gin-gonic/gin"
)

type PurchaseDTO struct {
	ID          string           `json:"id"`
	CourseID    uint             `json:"courseId"`
	CourseTitle string           `json:"courseTitle"`
	Amount      string           `json:"amount"`
	Currency    string           `json:"currency"`
	Status      purchases.Status `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

type purchaseRow struct {
	purchases.Purchase
	CourseTitle string
}

// GET /user/purchases
func (h *Handler) GetPurchaseHistory(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var rows []purchaseRow
	if err := h.DB.WithContext(c.Request.Context()).
		Table("purchases").
		Select("purchases.*, courses.title AS course_title").
		Joins("LEFT JOIN courses ON courses.id = purchases.course_id").
		Where("purchases.user_id = ?", userID).
		Order("purchases.created_at DESC").
		Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load purchases"})
		return
	}

	out := make([]PurchaseDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, PurchaseDTO{
			ID:          r.ID,
			CourseID:    r.CourseID,
			CourseTitle: r.CourseTitle,
			Amount:      r.Amount.StringFixed(purchases.MinorUnitExponent(r.Currency)),
			Currency:    r.Currency,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
			CompletedAt: r.CompletedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "purchases": out})
}
