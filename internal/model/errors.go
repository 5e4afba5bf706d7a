package model

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("user already exists with this email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTransition  = errors.New("invalid status transition")

	// 支付完整性错误：出现时不会写入任何资金记录
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrAlreadyProcessed = errors.New("donation already processed")
	ErrOrderMismatch    = errors.New("payment order does not match donation")

	ErrCampaignNotAcceptingDonations = errors.New("campaign is not accepting donations")
	ErrCampaignEnded                 = errors.New("campaign has ended")
	ErrGatewayNotConfigured          = errors.New("payment gateway not configured")
	ErrGatewayUnavailable            = errors.New("payment gateway unavailable")

	ErrAlreadyReported = errors.New("you have already reported this comment")
	ErrParentMismatch  = errors.New("parent comment belongs to another campaign")
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 请求参数校验失败
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError 构造单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
