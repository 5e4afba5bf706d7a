package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingKeyDonationConfirmed = "donation.confirmed"
	RoutingKeyCampaignMilestone = "campaign.milestone"
	RoutingKeyCampaignCompleted = "campaign.completed"
)

// DonationConfirmedPayload 捐款确认事件
type DonationConfirmedPayload struct {
	DonationID    string    `json:"donation_id"`
	CampaignID    string    `json:"campaign_id"`
	CampaignTitle string    `json:"campaign_title"`
	DonorID       string    `json:"donor_id"`
	Amount        string    `json:"amount"`
	PaymentID     string    `json:"payment_id"`
	IsAnonymous   bool      `json:"is_anonymous"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// CampaignMilestonePayload 每个被跨越的里程碑一条事件
type CampaignMilestonePayload struct {
	CampaignID    string `json:"campaign_id"`
	CampaignTitle string `json:"campaign_title"`
	Milestone     int    `json:"milestone"`
	CurrentAmount string `json:"current_amount"`
	GoalAmount    string `json:"goal_amount"`
	TraceID       string `json:"trace_id,omitempty"`
}

// CampaignCompletedPayload 活动达到目标金额
type CampaignCompletedPayload struct {
	CampaignID    string    `json:"campaign_id"`
	CampaignTitle string    `json:"campaign_title"`
	OwnerID       string    `json:"owner_id"`
	CurrentAmount string    `json:"current_amount"`
	GoalAmount    string    `json:"goal_amount"`
	CompletedAt   time.Time `json:"completed_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}
