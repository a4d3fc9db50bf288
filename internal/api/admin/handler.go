package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"course-marketplace/internal/checkout"
	"course-marketplace/internal/domain/enrollments"
	"course-marketplace/internal/domain/purchases"
	"course-marketplace/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultPurchaseLimit = 100
	maxPurchaseLimit     = 500
)

type Handler struct {
	DB         *gorm.DB
	Reconciler *checkout.Reconciler
	Currency   string
	Log        *slog.Logger
}

type AdminPurchase struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	CourseID    uint             `json:"course_id"`
	CourseTitle string           `json:"course_title"`
	Amount      string           `json:"amount"`
	Currency    string           `json:"currency"`
	Status      purchases.Status `json:"status"`
	Provider    string           `json:"provider,omitempty"`
	SessionRef  *string          `json:"session_ref,omitempty"`
	CreatedAt   string           `json:"created_at"`
}

type AdminStats struct {
	TotalUsers         int64            `json:"total_users"`
	TotalEnrollments   int64            `json:"total_enrollments"`
	TotalRevenue       string           `json:"total_revenue"`
	RecentRevenue      string           `json:"recent_revenue"`
	PurchasesPerStatus map[string]int64 `json:"purchases_per_status"`
}

type revenueRow struct {
	Total decimal.Decimal
}

type adminPurchaseRow struct {
	purchases.Purchase
	Email       string
	CourseTitle string
}

// GET /admin/purchases?status=pending&limit=50
func (h *Handler) ListPurchases(c *gin.Context) {
	limit := defaultPurchaseLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxPurchaseLimit)
	}

	q := h.DB.WithContext(c.Request.Context()).
		Table("purchases").
		Select("purchases.*, users.email AS email, courses.title AS course_title").
		Joins("LEFT JOIN users ON users.id = purchases.user_id").
		Joins("LEFT JOIN courses ON courses.id = purchases.course_id")

	if status := purchases.Status(c.Query("status")); status != "" {
		switch status {
		case purchases.StatusPending, purchases.StatusCompleted, purchases.StatusFailed:
			q = q.Where("purchases.status = ?", status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}

	var rows []adminPurchaseRow
	if err := q.Order("purchases.created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		h.Log.Error("admin list purchases", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load purchases"})
		return
	}

	result := make([]AdminPurchase, 0, len(rows))
	for _, p := range rows {
		result = append(result, AdminPurchase{
			ID:          p.ID,
			Email:       p.Email,
			CourseID:    p.CourseID,
			CourseTitle: p.CourseTitle,
			Amount:      p.Amount.StringFixed(purchases.MinorUnitExponent(p.Currency)),
			Currency:    p.Currency,
			Status:      p.Status,
			Provider:    p.Provider,
			SessionRef:  p.SessionRef,
			CreatedAt:   p.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	c.JSON(http.StatusOK, result)
}

// GET /admin/stats
func (h *Handler) GetStats(c *gin.Context) {
	db := h.DB.WithContext(c.Request.Context())

	var (
		stats         AdminStats
		totalRevenue  revenueRow
		recentRevenue revenueRow
	)

	if err := db.Model(&users.User{}).Count(&stats.TotalUsers).Error; err != nil {
		h.statsFailed(c, err)
		return
	}
	if err := db.Model(&enrollments.Enrollment{}).Count(&stats.TotalEnrollments).Error; err != nil {
		h.statsFailed(c, err)
		return
	}
	if err := db.Model(&purchases.Purchase{}).
		Where("status = ?", purchases.StatusCompleted).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&totalRevenue).Error; err != nil {
		h.statsFailed(c, err)
		return
	}

	thirtyDaysAgo := time.Now().UTC().AddDate(0, 0, -30)
	if err := db.Model(&purchases.Purchase{}).
		Where("status = ? AND completed_at >= ?", purchases.StatusCompleted, thirtyDaysAgo).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&recentRevenue).Error; err != nil {
		h.statsFailed(c, err)
		return
	}

	exp := purchases.MinorUnitExponent(h.Currency)
	stats.TotalRevenue = totalRevenue.Total.StringFixed(exp)
	stats.RecentRevenue = recentRevenue.Total.StringFixed(exp)

	var counts []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&purchases.Purchase{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		h.statsFailed(c, err)
		return
	}

	stats.PurchasesPerStatus = map[string]int64{}
	for _, row := range counts {
		stats.PurchasesPerStatus[row.Status] = row.Count
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) statsFailed(c *gin.Context, err error) {
	h.Log.Error("admin stats", slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
}

// POST /admin/reconcile runs one sweep now, on a context detached from the
// request so a dropped connection does not abort it halfway.
func (h *Handler) Reconcile(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Minute)
	defer cancel()

	report, err := h.Reconciler.Run(ctx)
	if err != nil {
		h.Log.Error("manual reconciliation failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed", "report": report})
		return
	}

	h.Log.Info("manual reconciliation", slog.String("by", c.GetString("email")))
	c.JSON(http.StatusOK, gin.H{"report": report})
}
