// Package moderation implements the admin console: user and campaign
// verification, campaign status overrides, complaint resolution and the
// dashboard summary.
package moderation

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/rbac"
)

type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, f repository.UserFilter) ([]*model.User, int, error)
	Update(ctx context.Context, id uuid.UUID, upd repository.UserUpdate, actor uuid.UUID) (*model.User, error)
	SetVerification(ctx context.Context, id uuid.UUID, verified bool, reason string, actor uuid.UUID) (*model.User, error)
}

type CampaignStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, f repository.CampaignFilter) ([]*model.Campaign, int, error)
	Verify(ctx context.Context, id uuid.UUID, approve bool, reason string, actor uuid.UUID) (*model.Campaign, error)
	SetStatus(ctx context.Context, id uuid.UUID, status model.CampaignStatus) (*model.Campaign, error)
}

type ComplaintStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Complaint, error)
	List(ctx context.Context, f repository.ComplaintFilter) ([]*model.Complaint, int, error)
	Update(ctx context.Context, id uuid.UUID, expected, status model.ComplaintStatus, notes *string, resolvedBy *uuid.UUID) (*model.Complaint, error)
}

// StatsSource 读取仪表盘统计，通常是带 Redis 缓存的 ReportRepository
type StatsSource interface {
	Dashboard(ctx context.Context, since time.Time) (*repository.DashboardStats, error)
}

const maxReasonLen = 500

type Service struct {
	users      UserStore
	campaigns  CampaignStore
	complaints ComplaintStore
	stats      StatsSource
	logger     *zap.Logger

	now func() time.Time
}

func NewService(users UserStore, campaigns CampaignStore, complaints ComplaintStore, stats StatsSource, logger *zap.Logger) *Service {
	return &Service{
		users:      users,
		campaigns:  campaigns,
		complaints: complaints,
		stats:      stats,
		logger:     logger,
		now:        time.Now,
	}
}

// ========== 仪表盘 ==========

// Dashboard 最近 12 个月的注册趋势加全局汇总
func (s *Service) Dashboard(ctx context.Context) (*repository.DashboardStats, error) {
	since := s.now().AddDate(-1, 0, 0)
	return s.stats.Dashboard(ctx, since)
}

// ========== 用户 ==========

type UserPage struct {
	Users      []*model.User    `json:"users"`
	Pagination query.Pagination `json:"pagination"`
}

func (s *Service) ListUsers(ctx context.Context, f repository.UserFilter) (*UserPage, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, model.NewValidationError("role", "Invalid role")
	}
	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*model.User{}
	}
	return &UserPage{Users: users, Pagination: query.NewPagination(f.Page, total)}, nil
}

// UnverifiedDonors 待认证的捐款人和发起人，最早注册的排在前面
func (s *Service) UnverifiedDonors(ctx context.Context, page query.Page) (*UserPage, error) {
	return s.ListUsers(ctx, repository.UserFilter{
		OnlyUnverified: true,
		Sort:           query.Sort{Column: repository.UserSortColumns["createdAt"]},
		Page:           page,
	})
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

type UpdateUserInput struct {
	Role            *rbac.Role
	IsVerified      *bool
	RejectionReason *string
}

func (s *Service) UpdateUser(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	var fields []model.FieldError
	if in.Role != nil && !in.Role.Valid() {
		fields = append(fields, model.FieldError{Field: "role", Message: "Invalid role"})
	}
	if in.RejectionReason != nil && utf8.RuneCountInString(*in.RejectionReason) > maxReasonLen {
		fields = append(fields, model.FieldError{Field: "rejectionReason", Message: "Rejection reason cannot exceed 500 characters"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}

	u, err := s.users.Update(ctx, id, repository.UserUpdate{
		Role:            in.Role,
		IsVerified:      in.IsVerified,
		RejectionReason: in.RejectionReason,
	}, actor.ID)
	if err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("User updated by admin",
		zap.String("user_id", id.String()),
		zap.String("admin_id", actor.ID.String()),
	)
	return u, nil
}

// VerifyUser 通过时清空拒绝原因；拒绝时保留未认证状态并记录原因
func (s *Service) VerifyUser(ctx context.Context, actor model.Actor, id uuid.UUID, approve bool, reason string) (*model.User, error) {
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return nil, model.NewValidationError("rejectionReason", "Rejection reason cannot exceed 500 characters")
	}
	u, err := s.users.SetVerification(ctx, id, approve, reason, actor.ID)
	if err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("User verification updated",
		zap.String("user_id", id.String()),
		zap.Bool("approved", approve),
	)
	return u, nil
}

// ========== 活动 ==========

type CampaignPage struct {
	Campaigns  []*model.Campaign `json:"campaigns"`
	Pagination query.Pagination  `json:"pagination"`
}

func (s *Service) ListCampaigns(ctx context.Context, f repository.CampaignFilter) (*CampaignPage, error) {
	campaigns, total, err := s.campaigns.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	return &CampaignPage{Campaigns: campaigns, Pagination: query.NewPagination(f.Page, total)}, nil
}

func (s *Service) UnverifiedCampaigns(ctx context.Context, page query.Page) (*CampaignPage, error) {
	return s.ListCampaigns(ctx, repository.CampaignFilter{
		OnlyUnverified: true,
		Sort:           query.Sort{Column: repository.CampaignSortColumns["createdAt"]},
		Page:           page,
	})
}

func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return s.campaigns.FindByID(ctx, id)
}

// VerifyCampaign pending -> active 或 rejected；其他状态返回 model.ErrInvalidTransition
func (s *Service) VerifyCampaign(ctx context.Context, actor model.Actor, id uuid.UUID, approve bool, reason string) (*model.Campaign, error) {
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return nil, model.NewValidationError("rejectionReason", "Rejection reason cannot exceed 500 characters")
	}
	c, err := s.campaigns.Verify(ctx, id, approve, reason, actor.ID)
	if err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Campaign verification updated",
		zap.String("campaign_id", id.String()),
		zap.String("status", string(c.Status)),
	)
	return c, nil
}

// SetCampaignStatus 不检查认证状态
func (s *Service) SetCampaignStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.CampaignStatus) (*model.Campaign, error) {
	if !status.AdminSettable() {
		return nil, model.NewValidationError("status", "Invalid status")
	}
	c, err := s.campaigns.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Campaign status changed by admin",
		zap.String("campaign_id", id.String()),
		zap.String("status", string(status)),
		zap.String("admin_id", actor.ID.String()),
	)
	return c, nil
}

// ========== 投诉 ==========

type ComplaintPage struct {
	Complaints []*model.Complaint `json:"complaints"`
	Pagination query.Pagination   `json:"pagination"`
}

func (s *Service) ListComplaints(ctx context.Context, f repository.ComplaintFilter) (*ComplaintPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.NewValidationError("status", "Invalid complaint status")
	}
	complaints, total, err := s.complaints.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if complaints == nil {
		complaints = []*model.Complaint{}
	}
	return &ComplaintPage{Complaints: complaints, Pagination: query.NewPagination(f.Page, total)}, nil
}

func (s *Service) GetComplaint(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	return s.complaints.FindByID(ctx, id)
}

type UpdateComplaintInput struct {
	Status     model.ComplaintStatus
	AdminNotes *string
}

// UpdateComplaint 状态机：pending -> in_review|dismissed, in_review -> resolved|dismissed。
// 状态不变时只更新备注
func (s *Service) UpdateComplaint(ctx context.Context, actor model.Actor, id uuid.UUID, in UpdateComplaintInput) (*model.Complaint, error) {
	var fields []model.FieldError
	if !in.Status.Valid() {
		fields = append(fields, model.FieldError{Field: "status", Message: "Invalid status"})
	}
	if in.AdminNotes != nil && utf8.RuneCountInString(*in.AdminNotes) > maxReasonLen {
		fields = append(fields, model.FieldError{Field: "adminNotes", Message: "Admin notes cannot exceed 500 characters"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}

	current, err := s.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != current.Status && !current.Status.CanTransitionTo(in.Status) {
		return nil, model.ErrInvalidTransition
	}

	var resolvedBy *uuid.UUID
	if in.Status != current.Status && in.Status.Terminal() {
		resolvedBy = &actor.ID
	}

	p, err := s.complaints.Update(ctx, id, current.Status, in.Status, in.AdminNotes, resolvedBy)
	if err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Complaint updated",
		zap.String("complaint_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(in.Status)),
	)
	return p, nil
}
