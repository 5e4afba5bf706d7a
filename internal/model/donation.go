package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentPending   PaymentStatus = "pending"
)

type Donation struct {
	ID            uuid.UUID       `json:"id"`
	DonorID       uuid.UUID       `json:"donorId"`
	CampaignID    uuid.UUID       `json:"campaignId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentID     string          `json:"paymentId"`
	OrderID       string          `json:"orderId"`
	Signature     string          `json:"-"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	IsAnonymous   bool            `json:"isAnonymous"`
	Message       string          `json:"message,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DonationView 列表展示，附带捐款人和活动信息
type DonationView struct {
	Donation
	Donor    *UserSummary `json:"donor,omitempty"`
	Campaign *CampaignRef `json:"campaign,omitempty"`
}

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
)

// PaymentOrder 网关订单，确认支付时用于核对活动和金额
type PaymentOrder struct {
	OrderID     string      `json:"orderId"`
	UserID      uuid.UUID   `json:"userId"`
	CampaignID  uuid.UUID   `json:"campaignId"`
	AmountMinor int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Receipt     string      `json:"receipt"`
	Status      OrderStatus `json:"status"`
	PaymentID   *string     `json:"paymentId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ToMinorUnits 金额转换为最小货币单位（四舍五入）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
