package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/notify"
	"crowdfundin/pkg/rbac"
)

type fakeCampaigns struct {
	campaign *model.Campaign
	donors   []model.Recipient
}

func (f *fakeCampaigns) FindByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, model.ErrNotFound
	}
	return f.campaign, nil
}

func (f *fakeCampaigns) ListUniqueDonors(context.Context, uuid.UUID) ([]model.Recipient, error) {
	return f.donors, nil
}

type fakeUsers map[uuid.UUID]*model.User

func (f fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, model.ErrNotFound
}

// memSettings 没有记录的用户返回默认设置
type memSettings map[uuid.UUID]model.NotificationSettings

func (m memSettings) Get(_ context.Context, id uuid.UUID) (model.NotificationSettings, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return model.DefaultNotificationSettings(), nil
}

func (m memSettings) Save(_ context.Context, id uuid.UUID, s model.NotificationSettings) (model.NotificationSettings, error) {
	m[id] = s
	return s, nil
}

func (m memSettings) ListFor(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.NotificationSettings, error) {
	out := map[uuid.UUID]model.NotificationSettings{}
	for _, id := range ids {
		if s, ok := m[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
	fail string
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	if msg.To == m.fail {
		return errors.New("mailbox unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func setup(t *testing.T) (*Service, *fakeCampaigns, *recordingMailer, model.Actor) {
	t.Helper()
	owner := model.Actor{ID: uuid.New(), Role: rbac.RoleCampaignOwner}
	campaigns := &fakeCampaigns{
		campaign: &model.Campaign{
			ID:            uuid.New(),
			OwnerID:       owner.ID,
			Title:         "Clean Water",
			GoalAmount:    decimal.NewFromInt(1000),
			CurrentAmount: decimal.NewFromInt(1050),
		},
		donors: []model.Recipient{
			{UserID: uuid.New(), Name: "A", Email: "a@example.com"},
			{UserID: uuid.New(), Name: "B", Email: "b@example.com"},
			{UserID: uuid.New(), Name: "C", Email: "c@example.com"},
		},
	}
	mailer := &recordingMailer{fail: "c@example.com"}
	sender := notify.NewNotifier(mailer, 2, zap.NewNop())
	return NewService(campaigns, fakeUsers{}, memSettings{}, sender, "http://localhost:3000", zap.NewNop()), campaigns, mailer, owner
}

func TestSendCampaignUpdate(t *testing.T) {
	svc, campaigns, mailer, owner := setup(t)

	res, err := svc.SendCampaignUpdate(context.Background(), owner, campaigns.campaign.ID, "We drilled the first well")
	if err != nil {
		t.Fatalf("SendCampaignUpdate: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v, want 2 sent 1 failed", res)
	}
	for _, m := range mailer.sent {
		if !strings.Contains(m.HTML, "first well") {
			t.Errorf("message to %s missing body", m.To)
		}
	}
}

func TestSendCampaignUpdateRequiresOwner(t *testing.T) {
	svc, campaigns, _, _ := setup(t)
	ctx := context.Background()

	stranger := model.Actor{ID: uuid.New(), Role: rbac.RoleCampaignOwner}
	if _, err := svc.SendCampaignUpdate(ctx, stranger, campaigns.campaign.ID, "hi"); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("stranger err = %v, want ErrForbidden", err)
	}

	adminActor := model.Actor{ID: uuid.New(), Role: rbac.RoleAdmin}
	if _, err := svc.SendCampaignUpdate(ctx, adminActor, campaigns.campaign.ID, "hi"); err != nil {
		t.Errorf("admin err = %v", err)
	}

	var ve *model.ValidationError
	if _, err := svc.SendCampaignUpdate(ctx, stranger, campaigns.campaign.ID, "   "); !errors.As(err, &ve) {
		t.Errorf("empty message err = %v", err)
	}
	if _, err := svc.SendCampaignUpdate(ctx, stranger, uuid.New(), "hi"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown campaign err = %v", err)
	}
}

func TestBroadcastMilestone(t *testing.T) {
	svc, campaigns, mailer, owner := setup(t)
	ctx := context.Background()
	adminActor := model.Actor{ID: uuid.New(), Role: rbac.RoleAdmin}

	var denied *rbac.PermissionDeniedError
	if _, err := svc.BroadcastMilestone(ctx, owner, campaigns.campaign.ID, 50); !errors.As(err, &denied) {
		t.Errorf("owner err = %v, want permission denied", err)
	}

	var ve *model.ValidationError
	if _, err := svc.BroadcastMilestone(ctx, adminActor, campaigns.campaign.ID, 60); !errors.As(err, &ve) {
		t.Errorf("milestone 60 err = %v", err)
	}

	res, err := svc.BroadcastMilestone(ctx, adminActor, campaigns.campaign.ID, 100)
	if err != nil {
		t.Fatalf("BroadcastMilestone: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(mailer.sent[0].HTML, "100%") {
		t.Errorf("milestone email = %q", mailer.sent[0].HTML)
	}
}

func TestSendDonationConfirmation(t *testing.T) {
	donor := &model.User{ID: uuid.New(), Name: "Dana", Email: "dana@example.com"}
	mailer := &recordingMailer{}
	svc := NewService(&fakeCampaigns{}, fakeUsers{donor.ID: donor}, memSettings{}, notify.NewNotifier(mailer, 1, zap.NewNop()), "http://app", zap.NewNop())

	if err := svc.SendDonationConfirmation(context.Background(), donor.ID, uuid.New(), "Clean Water", decimal.NewFromInt(150)); err != nil {
		t.Fatalf("SendDonationConfirmation: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != "dana@example.com" {
		t.Errorf("sent = %+v", mailer.sent)
	}

	if err := svc.SendDonationConfirmation(context.Background(), uuid.New(), uuid.New(), "x", decimal.NewFromInt(1)); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown donor err = %v", err)
	}
}

func TestCampaignUpdateSkipsOptedOutDonors(t *testing.T) {
	svc, campaigns, mailer, owner := setup(t)
	optedOut := campaigns.donors[0]
	off := model.DefaultNotificationSettings()
	off.CampaignUpdates = false
	svc.settings.(memSettings)[optedOut.UserID] = off

	res, err := svc.SendCampaignUpdate(context.Background(), owner, campaigns.campaign.ID, "Second well done")
	if err != nil {
		t.Fatalf("SendCampaignUpdate: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 sent 1 failed", res)
	}
	for _, m := range mailer.sent {
		if m.To == optedOut.Email {
			t.Errorf("opted-out donor %s received an update", m.To)
		}
	}

	// 关闭活动更新不影响里程碑通知
	res, err = svc.NotifyMilestone(context.Background(), campaigns.campaign.ID, "Clean Water", 50, decimal.NewFromInt(500), decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("NotifyMilestone: %v", err)
	}
	if res.Sent != 2 {
		t.Errorf("milestone sent = %d, want 2", res.Sent)
	}
}

func TestDonationConfirmationRespectsSettings(t *testing.T) {
	donor := &model.User{ID: uuid.New(), Name: "Dana", Email: "dana@example.com"}
	mailer := &recordingMailer{}
	settings := memSettings{}
	svc := NewService(&fakeCampaigns{}, fakeUsers{donor.ID: donor}, settings, notify.NewNotifier(mailer, 1, zap.NewNop()), "http://app", zap.NewNop())

	off := false
	if _, err := svc.UpdateSettings(context.Background(), donor.ID, UpdateSettingsInput{DonationConfirmation: &off}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if err := svc.SendDonationConfirmation(context.Background(), donor.ID, uuid.New(), "Clean Water", decimal.NewFromInt(150)); err != nil {
		t.Fatalf("SendDonationConfirmation: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent = %+v, want none", mailer.sent)
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	user := uuid.New()

	got, err := svc.GetSettings(ctx, user)
	if err != nil || got != model.DefaultNotificationSettings() {
		t.Fatalf("GetSettings = %+v, %v; want defaults", got, err)
	}

	off := false
	weekly := model.FrequencyWeekly
	got, err = svc.UpdateSettings(ctx, user, UpdateSettingsInput{MilestoneNotifications: &off, EmailFrequency: &weekly})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.MilestoneNotifications || !got.CampaignUpdates || !got.DonationConfirmation || got.EmailFrequency != model.FrequencyWeekly {
		t.Errorf("settings = %+v", got)
	}

	// 只改一项时其余保持
	on := true
	got, _ = svc.UpdateSettings(ctx, user, UpdateSettingsInput{CampaignUpdates: &on})
	if got.MilestoneNotifications || got.EmailFrequency != model.FrequencyWeekly {
		t.Errorf("partial update lost earlier values: %+v", got)
	}

	hourly := model.EmailFrequency("hourly")
	var ve *model.ValidationError
	if _, err := svc.UpdateSettings(ctx, user, UpdateSettingsInput{EmailFrequency: &hourly}); !errors.As(err, &ve) {
		t.Errorf("hourly err = %v, want ValidationError", err)
	}
}

func TestSendTestEmail(t *testing.T) {
	admin := &model.User{ID: uuid.New(), Name: "Root", Email: "root@example.com", Role: rbac.RoleAdmin}
	broken := &model.User{ID: uuid.New(), Name: "Ops", Email: "ops@example.com", Role: rbac.RoleAdmin}
	mailer := &recordingMailer{fail: broken.Email}
	users := fakeUsers{admin.ID: admin, broken.ID: broken}
	svc := NewService(&fakeCampaigns{}, users, memSettings{}, notify.NewNotifier(mailer, 1, zap.NewNop()), "http://app", zap.NewNop())
	ctx := context.Background()

	var denied *rbac.PermissionDeniedError
	if _, err := svc.SendTestEmail(ctx, model.Actor{ID: uuid.New(), Role: rbac.RoleDonor}); !errors.As(err, &denied) {
		t.Errorf("donor err = %v, want permission denied", err)
	}

	to, err := svc.SendTestEmail(ctx, model.Actor{ID: admin.ID, Role: rbac.RoleAdmin})
	if err != nil || to != admin.Email {
		t.Fatalf("SendTestEmail = %q, %v", to, err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != admin.Email {
		t.Errorf("sent = %+v", mailer.sent)
	}

	if _, err := svc.SendTestEmail(ctx, model.Actor{ID: broken.ID, Role: rbac.RoleAdmin}); !errors.Is(err, ErrEmailDelivery) {
		t.Errorf("failing mailer err = %v, want ErrEmailDelivery", err)
	}
}
