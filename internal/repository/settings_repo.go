package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfundin/internal/model"
)

type NotificationSettingsRepository struct {
	db *pgxpool.Pool
}

func NewNotificationSettingsRepository(db *pgxpool.Pool) *NotificationSettingsRepository {
	return &NotificationSettingsRepository{db: db}
}

const settingsColumns = `donation_confirmation, campaign_updates, milestone_notifications, email_frequency, updated_at`

// Get 没有保存过设置时返回默认值
func (r *NotificationSettingsRepository) Get(ctx context.Context, userID uuid.UUID) (model.NotificationSettings, error) {
	var s model.NotificationSettings
	err := r.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM notification_settings WHERE user_id = $1`, userID).
		Scan(&s.DonationConfirmation, &s.CampaignUpdates, &s.MilestoneNotifications, &s.EmailFrequency, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultNotificationSettings(), nil
	}
	if err != nil {
		return s, fmt.Errorf("get notification settings: %w", err)
	}
	return s, nil
}

// Save upsert 整份设置
func (r *NotificationSettingsRepository) Save(ctx context.Context, userID uuid.UUID, s model.NotificationSettings) (model.NotificationSettings, error) {
	query := `
        INSERT INTO notification_settings (user_id, donation_confirmation, campaign_updates,
                                           milestone_notifications, email_frequency)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE SET
            donation_confirmation   = EXCLUDED.donation_confirmation,
            campaign_updates        = EXCLUDED.campaign_updates,
            milestone_notifications = EXCLUDED.milestone_notifications,
            email_frequency         = EXCLUDED.email_frequency,
            updated_at              = NOW()
        RETURNING ` + settingsColumns
	var out model.NotificationSettings
	err := r.db.QueryRow(ctx, query, userID, s.DonationConfirmation, s.CampaignUpdates, s.MilestoneNotifications, s.EmailFrequency).
		Scan(&out.DonationConfirmation, &out.CampaignUpdates, &out.MilestoneNotifications, &out.EmailFrequency, &out.UpdatedAt)
	if err != nil {
		return out, fmt.Errorf("save notification settings: %w", err)
	}
	return out, nil
}

// ListFor 批量读取；没有记录的用户不在结果中，调用方按默认值处理
func (r *NotificationSettingsRepository) ListFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]model.NotificationSettings, error) {
	out := make(map[uuid.UUID]model.NotificationSettings, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT user_id, `+settingsColumns+` FROM notification_settings WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list notification settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var s model.NotificationSettings
		if err := rows.Scan(&id, &s.DonationConfirmation, &s.CampaignUpdates, &s.MilestoneNotifications, &s.EmailFrequency, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, rows.Err()
}
