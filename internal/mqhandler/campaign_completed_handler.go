package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mqcontracts "crowdfundin/contracts/mq"
	"crowdfundin/pkg/logger"
)

const campaignCompletedHandlerName = "campaign_completed_owner"

type CampaignCompletedHandler struct {
	notifications Notifications
	dedup         Deduper
	logger        *zap.Logger
}

func NewCampaignCompletedHandler(notifications Notifications, dedup Deduper, logger *zap.Logger) *CampaignCompletedHandler {
	return &CampaignCompletedHandler{notifications: notifications, dedup: dedup, logger: logger}
}

// Handle 通知发起人活动已达成目标
func (h *CampaignCompletedHandler) Handle(ctx context.Context, messageID string, raw json.RawMessage) error {
	var p mqcontracts.CampaignCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal CampaignCompletedPayload", zap.Error(err))
		return err
	}

	ownerID, err := uuid.Parse(p.OwnerID)
	if err != nil {
		return fmt.Errorf("invalid owner_id %q: %w", p.OwnerID, err)
	}
	campaignID, err := uuid.Parse(p.CampaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign_id %q: %w", p.CampaignID, err)
	}
	current, err := decimal.NewFromString(p.CurrentAmount)
	if err != nil {
		return fmt.Errorf("invalid current_amount %q: %w", p.CurrentAmount, err)
	}
	goal, err := decimal.NewFromString(p.GoalAmount)
	if err != nil {
		return fmt.Errorf("invalid goal_amount %q: %w", p.GoalAmount, err)
	}

	if !h.dedup.AcquireOnce(ctx, campaignCompletedHandlerName, p.CampaignID) {
		return nil
	}

	if err := h.notifications.SendCampaignCompleted(ctx, ownerID, campaignID, p.CampaignTitle, current, goal); err != nil {
		h.dedup.Release(ctx, campaignCompletedHandlerName, p.CampaignID)
		return err
	}

	logger.WithTrace(ctx, h.logger).Info("Campaign completion notice sent",
		zap.String("campaign_id", p.CampaignID),
		zap.String("message_id", messageID),
	)
	return nil
}
