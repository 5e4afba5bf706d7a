package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crowdfundin/internal/handler"
	"crowdfundin/pkg/otel"
	"crowdfundin/pkg/rbac"
)

// Pinger 用于 /readyz，通常是 *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth         *handler.AuthHandler
	Campaign     *handler.CampaignHandler
	Donation     *handler.DonationHandler
	Comment      *handler.CommentHandler
	Complaint    *handler.ComplaintHandler
	Notification *handler.NotificationHandler
	Admin        *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, users UserFinder, jwtSecret string, db Pinger, serviceName string, logger *zap.Logger) *Router {
	handler.UseJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(serviceName), MetricsMiddleware(), AccessLog(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	authed := AuthMiddleware(jwtSecret, users, logger)

	// Public
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.GET("/campaigns", h.Campaign.List)
	api.GET("/campaigns/:id", h.Campaign.Get)
	api.GET("/donations/campaign/:id", h.Donation.ListForCampaign)
	api.GET("/comments/campaign/:id", h.Comment.ListForCampaign)
	api.GET("/comments/user/:userId", h.Comment.ListByUser)

	// Protected
	p := api.Group("/")
	p.Use(authed)
	{
		p.GET("/auth/me", h.Auth.Me)

		p.POST("/campaigns", RequirePermission(rbac.PermissionCreateCampaign), h.Campaign.Create)

		p.POST("/donations/create-order", RequirePermission(rbac.PermissionDonate), h.Donation.CreateOrder)
		p.POST("/donations/verify-payment", RequirePermission(rbac.PermissionDonate), h.Donation.VerifyPayment)
		p.GET("/donations/my-donations", h.Donation.ListMine)
		p.GET("/donations/stats", RequirePermission(rbac.PermissionViewReports), h.Donation.Stats)

		p.POST("/comments", RequirePermission(rbac.PermissionComment), h.Comment.Create)
		p.PUT("/comments/:id", RequirePermission(rbac.PermissionComment), h.Comment.Update)
		p.DELETE("/comments/:id", h.Comment.Delete)
		p.POST("/comments/:id/like", RequirePermission(rbac.PermissionComment), h.Comment.Like)
		p.POST("/comments/:id/report", RequirePermission(rbac.PermissionComment), h.Comment.Report)

		p.POST("/complaints", RequirePermission(rbac.PermissionFileComplaint), h.Complaint.Create)
		p.GET("/complaints/my-complaints", h.Complaint.ListMine)

		p.POST("/notifications/campaign-update", RequirePermission(rbac.PermissionNotifyDonors), h.Notification.CampaignUpdate)
		p.POST("/notifications/milestone", RequirePermission(rbac.PermissionBroadcastMilestone), h.Notification.Milestone)
		p.GET("/notifications/settings", h.Notification.GetSettings)
		p.PUT("/notifications/settings", h.Notification.UpdateSettings)
		p.GET("/notifications/test-email", RequirePermission(rbac.PermissionTestEmail), h.Notification.TestEmail)
	}

	admin := api.Group("/admin")
	admin.Use(authed)
	{
		admin.GET("/stats", RequirePermission(rbac.PermissionViewReports), h.Admin.Stats)

		users := admin.Group("/", RequirePermission(rbac.PermissionManageUsers))
		users.GET("/users", h.Admin.ListUsers)
		users.GET("/users/:id", h.Admin.GetUser)
		users.PUT("/users/:id", h.Admin.UpdateUser)
		users.PUT("/users/:id/verify", h.Admin.VerifyUser)
		users.GET("/donors/unverified", h.Admin.UnverifiedDonors)

		campaigns := admin.Group("/campaigns", RequirePermission(rbac.PermissionManageCampaigns))
		campaigns.GET("", h.Admin.ListCampaigns)
		campaigns.GET("/unverified", h.Admin.UnverifiedCampaigns)
		campaigns.GET("/:id/verify", h.Admin.GetCampaign)
		campaigns.PUT("/:id/verify", h.Admin.VerifyCampaign)
		campaigns.PUT("/:id/status", h.Admin.SetCampaignStatus)

		complaints := admin.Group("/", RequirePermission(rbac.PermissionManageComplaints))
		complaints.GET("/complaints", h.Admin.ListComplaints)
		complaints.GET("/complaints/:id", h.Admin.GetComplaint)
		complaints.PUT("/complaints/:id", h.Admin.UpdateComplaint)
		complaints.GET("/reports", h.Admin.ListComplaints)

		admin.GET("/donor-history", RequirePermission(rbac.PermissionViewReports), h.Admin.DonorHistory)

		admin.GET("/comments/reported", RequirePermission(rbac.PermissionModerateComments), h.Comment.ListReported)
		admin.PUT("/comments/:id/moderate", RequirePermission(rbac.PermissionModerateComments), h.Comment.Moderate)

		admin.POST("/outbox/replay", RequirePermission(rbac.PermissionReplayOutbox), h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", RequirePermission(rbac.PermissionReplayOutbox), h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}
