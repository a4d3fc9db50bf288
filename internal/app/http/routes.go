package routes

import (
	"net/http"

	adminapi "course-marketplace/internal/api/admin"
	authapi "course-marketplace/internal/api/auth"
	"course-marketplace/internal/api/billing"
	coursesapi "course-marketplace/internal/api/courses"
	"course-marketplace/internal/api/midtranswebhook"
	stripewebhooks "course-marketplace/internal/api/stripewebhook"
	usersapi "course-marketplace/internal/api/users"
	"course-marketplace/internal/app/http/middleware"
	"course-marketplace/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Handlers is everything the router mounts. Exactly one webhook handler is
// set, matching the configured payment provider; Google may be nil.
type Handlers struct {
	DB        *gorm.DB
	JWTSecret string

	Auth     *authapi.Handler
	Google   *authapi.Google
	Courses  *coursesapi.Handler
	Users    *usersapi.Handler
	Billing  *billing.Handler
	Admin    *adminapi.Handler
	Stripe   *stripewebhooks.Handler
	Midtrans *midtranswebhook.Handler
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	// Webhooks read the raw body for signature checks, so they sit outside
	// the sanitizing group.
	if h.Stripe != nil {
		r.POST("/webhook", h.Stripe.StripeWebhook)
	}
	if h.Midtrans != nil {
		r.POST("/webhook/midtrans", h.Midtrans.MidtransNotification)
	}

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := h.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/courses", h.Courses.ListCourses)
	r.GET("/courses/:id", h.Courses.GetCourse)

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/register", h.Auth.Register)
	public.POST("/login", h.Auth.Login)

	if h.Google != nil {
		public.GET("/auth/google", h.Google.Start)
		public.GET("/auth/google/callback", h.Google.Callback)
	}

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(h.JWTSecret), middleware.SanitizeAndCleanInputMiddleware())

	auth.POST("/purchase", h.Billing.Purchase)
	auth.POST("/verify-payment", h.Billing.VerifyPayment)

	auth.GET("/user/data", h.Users.GetUserData)
	auth.GET("/user/enrolled-courses", h.Users.GetEnrolledCourses)
	auth.GET("/user/purchases", h.Billing.GetPurchaseHistory)
	auth.POST("/user/update-course-progress", h.Users.UpdateCourseProgress)
	auth.POST("/user/get-course-progress", h.Users.GetCourseProgress)
	auth.POST("/user/add-rating", h.Users.AddRating)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(h.JWTSecret), middleware.RequireRole(users.RoleAdmin))
	admin.GET("/purchases", h.Admin.ListPurchases)
	admin.GET("/stats", h.Admin.GetStats)
	admin.POST("/reconcile", h.Admin.Reconcile)
}
