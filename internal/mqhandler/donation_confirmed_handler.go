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

const donationConfirmedHandlerName = "donation_confirmed_email"

type DonationConfirmedHandler struct {
	notifications Notifications
	stats         StatsInvalidator
	dedup         Deduper
	logger        *zap.Logger
}

func NewDonationConfirmedHandler(notifications Notifications, stats StatsInvalidator, dedup Deduper, logger *zap.Logger) *DonationConfirmedHandler {
	return &DonationConfirmedHandler{
		notifications: notifications,
		stats:         stats,
		dedup:         dedup,
		logger:        logger,
	}
}

// Handle 发送捐款确认邮件并让仪表盘缓存失效
func (h *DonationConfirmedHandler) Handle(ctx context.Context, messageID string, raw json.RawMessage) error {
	var p mqcontracts.DonationConfirmedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal DonationConfirmedPayload", zap.Error(err))
		return err
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("donation_id", p.DonationID),
		zap.String("message_id", messageID),
	)

	if h.stats != nil {
		if err := h.stats.Invalidate(ctx); err != nil {
			log.Warn("Failed to invalidate dashboard cache", zap.Error(err))
		}
	}

	donorID, err := uuid.Parse(p.DonorID)
	if err != nil {
		return fmt.Errorf("invalid donor_id %q: %w", p.DonorID, err)
	}
	campaignID, err := uuid.Parse(p.CampaignID)
	if err != nil {
		return fmt.Errorf("invalid campaign_id %q: %w", p.CampaignID, err)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", p.Amount, err)
	}

	if !h.dedup.AcquireOnce(ctx, donationConfirmedHandlerName, p.DonationID) {
		return nil
	}

	if err := h.notifications.SendDonationConfirmation(ctx, donorID, campaignID, p.CampaignTitle, amount); err != nil {
		h.dedup.Release(ctx, donationConfirmedHandlerName, p.DonationID)
		log.Error("Failed to send donation confirmation", zap.Error(err))
		return err
	}

	log.Info("Donation confirmation sent")
	return nil
}
