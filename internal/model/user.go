package model

import (
	"time"

	"github.com/google/uuid"

	"crowdfundin/pkg/rbac"
)

type User struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Role            rbac.Role  `json:"role"`
	IsVerified      bool       `json:"isVerified"`
	VerifiedBy      *uuid.UUID `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UserSummary 列表和关联展示用
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

// Recipient 邮件通知收件人
type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// Actor 发起请求的已认证用户
type Actor struct {
	ID   uuid.UUID
	Role rbac.Role
}
