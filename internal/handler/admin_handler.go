package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/internal/service/moderation"
	"crowdfundin/pkg/rbac"
)

type ModerationService interface {
	Dashboard(ctx context.Context) (*repository.DashboardStats, error)
	ListUsers(ctx context.Context, f repository.UserFilter) (*moderation.UserPage, error)
	UnverifiedDonors(ctx context.Context, page query.Page) (*moderation.UserPage, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateUser(ctx context.Context, actor model.Actor, id uuid.UUID, in moderation.UpdateUserInput) (*model.User, error)
	VerifyUser(ctx context.Context, actor model.Actor, id uuid.UUID, approve bool, reason string) (*model.User, error)
	ListCampaigns(ctx context.Context, f repository.CampaignFilter) (*moderation.CampaignPage, error)
	UnverifiedCampaigns(ctx context.Context, page query.Page) (*moderation.CampaignPage, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	VerifyCampaign(ctx context.Context, actor model.Actor, id uuid.UUID, approve bool, reason string) (*model.Campaign, error)
	SetCampaignStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.CampaignStatus) (*model.Campaign, error)
	ListComplaints(ctx context.Context, f repository.ComplaintFilter) (*moderation.ComplaintPage, error)
	GetComplaint(ctx context.Context, id uuid.UUID) (*model.Complaint, error)
	UpdateComplaint(ctx context.Context, actor model.Actor, id uuid.UUID, in moderation.UpdateComplaintInput) (*model.Complaint, error)
}

// OutboxReplayer 由 outbox.ReplayService 实现
type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	moderation ModerationService
	donations  DonationService
	replay     OutboxReplayer
	logger     *zap.Logger
}

func NewAdminHandler(moderation ModerationService, donations DonationService, replay OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		moderation: moderation,
		donations:  donations,
		replay:     replay,
		logger:     logger,
	}
}

// Stats handles GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.moderation.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ========== Users ==========

// ListUsers handles GET /api/admin/users?search=&role=&sortBy=&order=&page=&limit=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, err := h.moderation.ListUsers(c.Request.Context(), repository.UserFilter{
		Search: c.Query("search"),
		Role:   rbac.Role(c.Query("role")),
		Sort:   query.ParseSort(c.Query("sortBy"), c.Query("order"), repository.UserSortColumns, "createdAt"),
		Page:   pageFrom(c, 10),
	})
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, page)
}

// UnverifiedDonors handles GET /api/admin/donors/unverified
func (h *AdminHandler) UnverifiedDonors(c *gin.Context) {
	page, err := h.moderation.UnverifiedDonors(c.Request.Context(), pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetUser handles GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id", "User")
	if !ok {
		return
	}
	u, err := h.moderation.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateUser handles PUT /api/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "User")
	if !ok {
		return
	}

	var req struct {
		Role            *string `json:"role" binding:"omitempty,oneof=donor campaign_owner admin"`
		IsVerified      *bool   `json:"isVerified"`
		RejectionReason *string `json:"rejectionReason" binding:"omitempty,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	in := moderation.UpdateUserInput{IsVerified: req.IsVerified, RejectionReason: req.RejectionReason}
	if req.Role != nil {
		role := rbac.Role(*req.Role)
		in.Role = &role
	}

	u, err := h.moderation.UpdateUser(c.Request.Context(), actor, id, in)
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": u})
}

type verifyRequest struct {
	IsVerified      *bool  `json:"isVerified" binding:"required"`
	RejectionReason string `json:"rejectionReason" binding:"max=500"`
}

func verdict(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

// VerifyUser handles PUT /api/admin/users/:id/verify
func (h *AdminHandler) VerifyUser(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "User")
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	u, err := h.moderation.VerifyUser(c.Request.Context(), actor, id, *req.IsVerified, req.RejectionReason)
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User " + verdict(*req.IsVerified) + " successfully", "user": u})
}

// ========== Campaigns ==========

// ListCampaigns handles GET /api/admin/campaigns?search=&status=&category=&sortBy=&order=
func (h *AdminHandler) ListCampaigns(c *gin.Context) {
	page, err := h.moderation.ListCampaigns(c.Request.Context(), repository.CampaignFilter{
		Search:   c.Query("search"),
		Status:   model.CampaignStatus(c.Query("status")),
		Category: c.Query("category"),
		Sort:     query.ParseSort(c.Query("sortBy"), c.Query("order"), repository.CampaignSortColumns, "createdAt"),
		Page:     pageFrom(c, 10),
	})
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, page)
}

// UnverifiedCampaigns handles GET /api/admin/campaigns/unverified
func (h *AdminHandler) UnverifiedCampaigns(c *gin.Context) {
	page, err := h.moderation.UnverifiedCampaigns(c.Request.Context(), pageFrom(c, 10))
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetCampaign handles GET /api/admin/campaigns/:id/verify
func (h *AdminHandler) GetCampaign(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}
	found, err := h.moderation.GetCampaign(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": found})
}

// VerifyCampaign handles PUT /api/admin/campaigns/:id/verify
func (h *AdminHandler) VerifyCampaign(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	updated, err := h.moderation.VerifyCampaign(c.Request.Context(), actor, id, *req.IsVerified, req.RejectionReason)
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Campaign " + verdict(*req.IsVerified) + " successfully", "campaign": updated})
}

// SetCampaignStatus handles PUT /api/admin/campaigns/:id/status
func (h *AdminHandler) SetCampaignStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Campaign")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required,oneof=active completed cancelled expired"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	updated, err := h.moderation.SetCampaignStatus(c.Request.Context(), actor, id, model.CampaignStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Campaign status updated successfully", "campaign": updated})
}

// ========== Complaints ==========

// ListComplaints handles GET /api/admin/complaints and its /api/admin/reports alias
func (h *AdminHandler) ListComplaints(c *gin.Context) {
	status := c.Query("status")
	if status == "all" {
		status = ""
	}
	page, err := h.moderation.ListComplaints(c.Request.Context(), repository.ComplaintFilter{
		Status: model.ComplaintStatus(status),
		Search: c.Query("search"),
		Sort:   query.ParseSort(c.Query("sortBy"), c.Query("order"), repository.ComplaintSortColumns, "createdAt"),
		Page:   pageFrom(c, 10),
	})
	if err != nil {
		respondError(c, h.logger, err, "Complaint")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetComplaint handles GET /api/admin/complaints/:id
func (h *AdminHandler) GetComplaint(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Complaint")
	if !ok {
		return
	}
	p, err := h.moderation.GetComplaint(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Complaint")
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": p})
}

// UpdateComplaint handles PUT /api/admin/complaints/:id
func (h *AdminHandler) UpdateComplaint(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "Complaint")
	if !ok {
		return
	}

	var req struct {
		Status     string  `json:"status" binding:"required,oneof=pending in_review resolved dismissed"`
		AdminNotes *string `json:"adminNotes" binding:"omitempty,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	p, err := h.moderation.UpdateComplaint(c.Request.Context(), actor, id, moderation.UpdateComplaintInput{
		Status:     model.ComplaintStatus(req.Status),
		AdminNotes: req.AdminNotes,
	})
	if err != nil {
		respondError(c, h.logger, err, "Complaint")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Complaint updated successfully", "complaint": p})
}

// ========== Donations ==========

// DonorHistory handles GET /api/admin/donor-history?donor=&campaign=&dateFrom=&dateTo=&sortBy=&order=
func (h *AdminHandler) DonorHistory(c *gin.Context) {
	f, err := donationFilterFrom(c)
	if err != nil {
		respondError(c, h.logger, err, "Donation")
		return
	}
	page, err := h.donations.History(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err, "Donation")
		return
	}
	c.JSON(http.StatusOK, page)
}

func donationFilterFrom(c *gin.Context) (repository.DonationFilter, error) {
	f := repository.DonationFilter{
		Sort: query.ParseSort(c.Query("sortBy"), c.Query("order"), repository.DonationSortColumns, "createdAt"),
		Page: pageFrom(c, 20),
	}
	var err error
	if f.DonorID, err = optionalUUID(c.Query("donor"), "donor"); err != nil {
		return f, err
	}
	if f.CampaignID, err = optionalUUID(c.Query("campaign"), "campaign"); err != nil {
		return f, err
	}
	if f.From, err = optionalDate(c.Query("dateFrom"), "dateFrom", false); err != nil {
		return f, err
	}
	if f.To, err = optionalDate(c.Query("dateTo"), "dateTo", true); err != nil {
		return f, err
	}
	return f, nil
}

// optionalDate 接受 RFC3339 或 2006-01-02；endOfDay 时纯日期取当天结束
func optionalDate(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, model.NewValidationError(field, "Invalid date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ========== Outbox ==========

// ReplayOutboxEvent 重放指定的 Outbox 事件
// POST /api/admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid id parameter"})
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		h.logger.Error("Failed to replay event",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to replay event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "replayed", "eventId": eventID})
}

// ReplayFailedEvents 重放所有失败的事件
// POST /api/admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	replayed, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to replay failed events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "replayed": replayed, "limit": limit})
}
