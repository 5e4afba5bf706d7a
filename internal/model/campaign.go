package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignExpired   CampaignStatus = "expired"
	CampaignRejected  CampaignStatus = "rejected"
)

// AcceptsDonations 只有 pending 和 active 的活动可以创建支付订单
func (s CampaignStatus) AcceptsDonations() bool {
	return s == CampaignPending || s == CampaignActive
}

// AdminSettable 管理员可以直接设置的状态
func (s CampaignStatus) AdminSettable() bool {
	switch s {
	case CampaignActive, CampaignCompleted, CampaignCancelled, CampaignExpired:
		return true
	}
	return false
}

type Campaign struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         uuid.UUID       `json:"ownerId"`
	Owner           *UserSummary    `json:"owner,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	GoalAmount      decimal.Decimal `json:"goalAmount"`
	CurrentAmount   decimal.Decimal `json:"currentAmount"`
	Status          CampaignStatus  `json:"status"`
	Deadline        time.Time       `json:"deadline"`
	IsVerified      bool            `json:"isVerified"`
	VerifiedBy      *uuid.UUID      `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time      `json:"verifiedAt,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	DonorCount      int             `json:"donorCount"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ProgressPercent 精确百分比，不做取整
func (c *Campaign) ProgressPercent() decimal.Decimal {
	if !c.GoalAmount.IsPositive() {
		return decimal.Zero
	}
	return c.CurrentAmount.Div(c.GoalAmount).Mul(decimal.NewFromInt(100))
}

// DonorEntry 活动的捐款人记录
type DonorEntry struct {
	CampaignID  uuid.UUID       `json:"campaignId"`
	UserID      uuid.UUID       `json:"userId"`
	DonationID  uuid.UUID       `json:"donationId"`
	Amount      decimal.Decimal `json:"amount"`
	IsAnonymous bool            `json:"isAnonymous"`
	DonatedAt   time.Time       `json:"donatedAt"`
}

// AmountChange 原子累加后的前后金额
type AmountChange struct {
	Previous decimal.Decimal
	Current  decimal.Decimal
	Goal     decimal.Decimal
	Title    string
	OwnerID  uuid.UUID
	Status   CampaignStatus
}
