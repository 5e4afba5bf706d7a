package mqhandler

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crowdfundin/internal/notify"
)

// Deduper 由 util.Deduper 实现；同一事件只处理一次
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventKey string) bool
	Release(ctx context.Context, handler, eventKey string)
}

// Notifications 由 notification.Service 实现
type Notifications interface {
	SendDonationConfirmation(ctx context.Context, donorID, campaignID uuid.UUID, title string, amount decimal.Decimal) error
	NotifyMilestone(ctx context.Context, campaignID uuid.UUID, title string, milestone int, current, goal decimal.Decimal) (notify.Result, error)
	SendCampaignCompleted(ctx context.Context, ownerID, campaignID uuid.UUID, title string, current, goal decimal.Decimal) error
}

// StatsInvalidator 由 repository.StatsCache 实现
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}
