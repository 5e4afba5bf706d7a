package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/notify"
	"crowdfundin/internal/service/donation"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/rbac"
)

const (
	KindDonationConfirmation = "donation_confirmation"
	KindCampaignUpdate       = "campaign_update"
	KindMilestone            = "milestone"
	KindCampaignCompleted    = "campaign_completed"
	KindTest                 = "test"
)

// ErrEmailDelivery 测试邮件发送失败，通常是邮件服务配置问题
var ErrEmailDelivery = errors.New("email delivery failed")

type CampaignStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	ListUniqueDonors(ctx context.Context, campaignID uuid.UUID) ([]model.Recipient, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// SettingsStore 由 repository.NotificationSettingsRepository 实现
type SettingsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (model.NotificationSettings, error)
	Save(ctx context.Context, userID uuid.UUID, s model.NotificationSettings) (model.NotificationSettings, error)
	ListFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]model.NotificationSettings, error)
}

// Sender 由 notify.Notifier 实现
type Sender interface {
	Send(ctx context.Context, kind string, msg notify.Message) error
	FanOut(ctx context.Context, kind string, recipients []model.Recipient, build notify.BuildFunc) notify.Result
}

type Service struct {
	campaigns   CampaignStore
	users       UserFinder
	settings    SettingsStore
	sender      Sender
	frontendURL string
	logger      *zap.Logger
}

func NewService(campaigns CampaignStore, users UserFinder, settings SettingsStore, sender Sender, frontendURL string, logger *zap.Logger) *Service {
	return &Service{
		campaigns:   campaigns,
		users:       users,
		settings:    settings,
		sender:      sender,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

func (s *Service) GetSettings(ctx context.Context, userID uuid.UUID) (model.NotificationSettings, error) {
	return s.settings.Get(ctx, userID)
}

// UpdateSettingsInput nil 表示保持原值
type UpdateSettingsInput struct {
	DonationConfirmation   *bool
	CampaignUpdates        *bool
	MilestoneNotifications *bool
	EmailFrequency         *model.EmailFrequency
}

func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, in UpdateSettingsInput) (model.NotificationSettings, error) {
	if in.EmailFrequency != nil && !in.EmailFrequency.Valid() {
		return model.NotificationSettings{}, model.NewValidationError("emailFrequency", "Email frequency must be immediate, daily, or weekly")
	}

	cur, err := s.settings.Get(ctx, userID)
	if err != nil {
		return cur, err
	}
	if in.DonationConfirmation != nil {
		cur.DonationConfirmation = *in.DonationConfirmation
	}
	if in.CampaignUpdates != nil {
		cur.CampaignUpdates = *in.CampaignUpdates
	}
	if in.MilestoneNotifications != nil {
		cur.MilestoneNotifications = *in.MilestoneNotifications
	}
	if in.EmailFrequency != nil {
		cur.EmailFrequency = *in.EmailFrequency
	}
	return s.settings.Save(ctx, userID, cur)
}

// SendTestEmail 给管理员自己发一封测试邮件
func (s *Service) SendTestEmail(ctx context.Context, actor model.Actor) (string, error) {
	if err := rbac.CheckPermission(actor.Role, rbac.PermissionTestEmail); err != nil {
		return "", err
	}
	u, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return "", err
	}
	msg, err := notify.TestEmail(u.Email, u.Name)
	if err != nil {
		return "", err
	}
	if err := s.sender.Send(ctx, KindTest, msg); err != nil {
		logger.WithTrace(ctx, s.logger).Error("Test email failed", zap.String("to", u.Email), zap.Error(err))
		return u.Email, fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	return u.Email, nil
}

// subscribed 去掉关闭了该类通知的收件人
func (s *Service) subscribed(ctx context.Context, recipients []model.Recipient, ch model.NotificationChannel) ([]model.Recipient, error) {
	if len(recipients) == 0 {
		return recipients, nil
	}
	ids := make([]uuid.UUID, len(recipients))
	for i, r := range recipients {
		ids[i] = r.UserID
	}
	prefs, err := s.settings.ListFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load notification settings: %w", err)
	}
	out := recipients[:0:0]
	for _, r := range recipients {
		if p, ok := prefs[r.UserID]; ok && !p.Allows(ch) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SendCampaignUpdate 活动发起人（或管理员）向所有捐款人发送进展
func (s *Service) SendCampaignUpdate(ctx context.Context, actor model.Actor, campaignID uuid.UUID, message string) (notify.Result, error) {
	message = strings.TrimSpace(message)
	if n := utf8.RuneCountInString(message); n == 0 || n > 5000 {
		return notify.Result{}, model.NewValidationError("updateMessage", "Update message is required and cannot exceed 5000 characters")
	}

	c, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return notify.Result{}, err
	}
	if c.OwnerID != actor.ID && !rbac.Can(actor.Role, rbac.PermissionManageCampaigns) {
		return notify.Result{}, model.ErrForbidden
	}

	donors, err := s.campaigns.ListUniqueDonors(ctx, campaignID)
	if err != nil {
		return notify.Result{}, err
	}
	if donors, err = s.subscribed(ctx, donors, model.ChannelCampaignUpdates); err != nil {
		return notify.Result{}, err
	}

	url := notify.CampaignURL(s.frontendURL, c.ID.String())
	res := s.sender.FanOut(ctx, KindCampaignUpdate, donors, func(r model.Recipient) (notify.Message, error) {
		return notify.CampaignUpdate(r.Email, r.Name, c.Title, message, url, c.CurrentAmount, c.GoalAmount)
	})

	logger.WithTrace(ctx, s.logger).Info("Campaign update sent",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// BroadcastMilestone 管理员手动补发里程碑通知
func (s *Service) BroadcastMilestone(ctx context.Context, actor model.Actor, campaignID uuid.UUID, milestone int) (notify.Result, error) {
	if err := rbac.CheckPermission(actor.Role, rbac.PermissionBroadcastMilestone); err != nil {
		return notify.Result{}, err
	}
	if !slices.Contains(donation.Milestones, milestone) {
		return notify.Result{}, model.NewValidationError("milestone", "Milestone must be 25, 50, 75, or 100")
	}

	c, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return notify.Result{}, err
	}
	return s.NotifyMilestone(ctx, c.ID, c.Title, milestone, c.CurrentAmount, c.GoalAmount)
}

// NotifyMilestone 通知活动的所有去重后的捐款人；金额取事件发生时的值
func (s *Service) NotifyMilestone(ctx context.Context, campaignID uuid.UUID, title string, milestone int, current, goal decimal.Decimal) (notify.Result, error) {
	donors, err := s.campaigns.ListUniqueDonors(ctx, campaignID)
	if err != nil {
		return notify.Result{}, fmt.Errorf("list donors: %w", err)
	}
	if donors, err = s.subscribed(ctx, donors, model.ChannelMilestones); err != nil {
		return notify.Result{}, err
	}

	url := notify.CampaignURL(s.frontendURL, campaignID.String())
	res := s.sender.FanOut(ctx, KindMilestone, donors, func(r model.Recipient) (notify.Message, error) {
		return notify.Milestone(r.Email, r.Name, title, milestone, url, current, goal)
	})

	logger.WithTrace(ctx, s.logger).Info("Milestone notification sent",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone", milestone),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// SendDonationConfirmation 给捐款人发确认邮件
func (s *Service) SendDonationConfirmation(ctx context.Context, donorID, campaignID uuid.UUID, title string, amount decimal.Decimal) error {
	u, err := s.users.FindByID(ctx, donorID)
	if err != nil {
		return fmt.Errorf("load donor: %w", err)
	}
	prefs, err := s.settings.Get(ctx, donorID)
	if err != nil {
		return err
	}
	if !prefs.Allows(model.ChannelDonationConfirmation) {
		return nil
	}
	msg, err := notify.DonationConfirmation(u.Email, u.Name, title, amount, notify.CampaignURL(s.frontendURL, campaignID.String()))
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, KindDonationConfirmation, msg)
}

// SendCampaignCompleted 通知发起人活动已达成目标
func (s *Service) SendCampaignCompleted(ctx context.Context, ownerID, campaignID uuid.UUID, title string, current, goal decimal.Decimal) error {
	u, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	msg, err := notify.Milestone(u.Email, u.Name, title, 100, notify.CampaignURL(s.frontendURL, campaignID.String()), current, goal)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, KindCampaignCompleted, msg)
}
