package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/notify"
	"crowdfundin/internal/service/notification"
)

type NotificationService interface {
	SendCampaignUpdate(ctx context.Context, actor model.Actor, campaignID uuid.UUID, message string) (notify.Result, error)
	BroadcastMilestone(ctx context.Context, actor model.Actor, campaignID uuid.UUID, milestone int) (notify.Result, error)
	GetSettings(ctx context.Context, userID uuid.UUID) (model.NotificationSettings, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, in notification.UpdateSettingsInput) (model.NotificationSettings, error)
	SendTestEmail(ctx context.Context, actor model.Actor) (string, error)
}

type NotificationHandler struct {
	notifications NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// CampaignUpdate handles POST /api/notifications/campaign-update
func (h *NotificationHandler) CampaignUpdate(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		CampaignID    string `json:"campaignId" binding:"required,uuid"`
		UpdateMessage string `json:"updateMessage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.notifications.SendCampaignUpdate(c.Request.Context(), actor, uuid.MustParse(req.CampaignID), req.UpdateMessage)
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Campaign update sent successfully",
		"sent":    res.Sent,
		"failed":  res.Failed,
	})
}

// Milestone handles POST /api/notifications/milestone
func (h *NotificationHandler) Milestone(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		CampaignID string `json:"campaignId" binding:"required,uuid"`
		Milestone  int    `json:"milestone" binding:"required,oneof=25 50 75 100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.notifications.BroadcastMilestone(c.Request.Context(), actor, uuid.MustParse(req.CampaignID), req.Milestone)
	if err != nil {
		respondError(c, h.logger, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Milestone notification (%d%%) sent successfully", req.Milestone),
		"sent":    res.Sent,
		"failed":  res.Failed,
	})
}

// GetSettings handles GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	settings, err := h.notifications.GetSettings(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, h.logger, err, "Settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Notification settings retrieved successfully",
		"settings": settings,
	})
}

// UpdateSettings handles PUT /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req struct {
		DonationConfirmation   *bool   `json:"donationConfirmation"`
		CampaignUpdates        *bool   `json:"campaignUpdates"`
		MilestoneNotifications *bool   `json:"milestoneNotifications"`
		EmailFrequency         *string `json:"emailFrequency" binding:"omitempty,oneof=immediate daily weekly"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	in := notification.UpdateSettingsInput{
		DonationConfirmation:   req.DonationConfirmation,
		CampaignUpdates:        req.CampaignUpdates,
		MilestoneNotifications: req.MilestoneNotifications,
	}
	if req.EmailFrequency != nil {
		f := model.EmailFrequency(*req.EmailFrequency)
		in.EmailFrequency = &f
	}

	settings, err := h.notifications.UpdateSettings(c.Request.Context(), actor.ID, in)
	if err != nil {
		respondError(c, h.logger, err, "Settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Notification settings updated successfully",
		"settings": settings,
	})
}

// TestEmail handles GET /api/notifications/test-email
func (h *NotificationHandler) TestEmail(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	to, err := h.notifications.SendTestEmail(c.Request.Context(), actor)
	if errors.Is(err, notification.ErrEmailDelivery) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Email configuration error",
			"error":   err.Error(),
			"status":  "error",
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Email configuration is working properly",
		"sentTo":  to,
		"status":  "success",
	})
}
