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

const milestoneHandlerName = "campaign_milestone_fanout"

type MilestoneHandler struct {
	notifications Notifications
	dedup         Deduper
	logger        *zap.Logger
}

func NewMilestoneHandler(notifications Notifications, dedup Deduper, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{notifications: notifications, dedup: dedup, logger: logger}
}

// Handle 通知所有去重后的捐款人；单个收件人失败不会重投整条消息
func (h *MilestoneHandler) Handle(ctx context.Context, messageID string, raw json.RawMessage) error {
	var p mqcontracts.CampaignMilestonePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal CampaignMilestonePayload", zap.Error(err))
		return err
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

	key := fmt.Sprintf("%s:%d", p.CampaignID, p.Milestone)
	if !h.dedup.AcquireOnce(ctx, milestoneHandlerName, key) {
		return nil
	}

	res, err := h.notifications.NotifyMilestone(ctx, campaignID, p.CampaignTitle, p.Milestone, current, goal)
	if err != nil {
		h.dedup.Release(ctx, milestoneHandlerName, key)
		return err
	}

	logger.WithTrace(ctx, h.logger).Info("Milestone fan-out finished",
		zap.String("campaign_id", p.CampaignID),
		zap.Int("milestone", p.Milestone),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.String("message_id", messageID),
	)
	return nil
}
