package model

import "time"

type EmailFrequency string

const (
	FrequencyImmediate EmailFrequency = "immediate"
	FrequencyDaily     EmailFrequency = "daily"
	FrequencyWeekly    EmailFrequency = "weekly"
)

func (f EmailFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// NotificationChannel 用户可以单独关闭的邮件类别
type NotificationChannel string

const (
	ChannelDonationConfirmation NotificationChannel = "donation_confirmation"
	ChannelCampaignUpdates      NotificationChannel = "campaign_updates"
	ChannelMilestones           NotificationChannel = "milestone_notifications"
)

type NotificationSettings struct {
	DonationConfirmation   bool           `json:"donationConfirmation"`
	CampaignUpdates        bool           `json:"campaignUpdates"`
	MilestoneNotifications bool           `json:"milestoneNotifications"`
	EmailFrequency         EmailFrequency `json:"emailFrequency"`
	UpdatedAt              *time.Time     `json:"updatedAt,omitempty"`
}

// DefaultNotificationSettings 未保存过设置的用户全部开启
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		DonationConfirmation:   true,
		CampaignUpdates:        true,
		MilestoneNotifications: true,
		EmailFrequency:         FrequencyImmediate,
	}
}

func (s NotificationSettings) Allows(ch NotificationChannel) bool {
	switch ch {
	case ChannelDonationConfirmation:
		return s.DonationConfirmation
	case ChannelCampaignUpdates:
		return s.CampaignUpdates
	case ChannelMilestones:
		return s.MilestoneNotifications
	}
	return true
}
