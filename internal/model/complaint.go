package model

import (
	"time"

	"github.com/google/uuid"
)

type ComplaintStatus string

const (
	ComplaintPending   ComplaintStatus = "pending"
	ComplaintInReview  ComplaintStatus = "in_review"
	ComplaintResolved  ComplaintStatus = "resolved"
	ComplaintDismissed ComplaintStatus = "dismissed"
)

var complaintTransitions = map[ComplaintStatus][]ComplaintStatus{
	ComplaintPending:  {ComplaintInReview, ComplaintDismissed},
	ComplaintInReview: {ComplaintResolved, ComplaintDismissed},
}

func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintPending, ComplaintInReview, ComplaintResolved, ComplaintDismissed:
		return true
	}
	return false
}

// CanTransitionTo resolved 和 dismissed 是终态
func (s ComplaintStatus) CanTransitionTo(next ComplaintStatus) bool {
	for _, allowed := range complaintTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal 终态需要记录处理人
func (s ComplaintStatus) Terminal() bool {
	return s == ComplaintResolved || s == ComplaintDismissed
}

type Complaint struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	User        *UserSummary    `json:"user,omitempty"`
	CampaignID  uuid.UUID       `json:"campaignId"`
	Campaign    *CampaignRef    `json:"campaign,omitempty"`
	Subject     string          `json:"subject"`
	Description string          `json:"description"`
	Status      ComplaintStatus `json:"status"`
	AdminNotes  string          `json:"adminNotes,omitempty"`
	ResolvedBy  *uuid.UUID      `json:"resolvedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CampaignRef 关联展示用的活动摘要
type CampaignRef struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}
