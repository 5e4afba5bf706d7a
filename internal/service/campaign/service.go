package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
)

type Store interface {
	Create(ctx context.Context, c *model.Campaign) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, f repository.CampaignFilter) ([]*model.Campaign, int, error)
}

type Service struct {
	campaigns Store
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(campaigns Store, logger *zap.Logger) *Service {
	return &Service{campaigns: campaigns, logger: logger, now: time.Now}
}

type CreateInput struct {
	Title       string
	Description string
	Category    string
	GoalAmount  decimal.Decimal
	Deadline    time.Time
}

// Create 新活动为 pending，需管理员审核
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*model.Campaign, error) {
	var fields []model.FieldError
	if strings.TrimSpace(in.Title) == "" {
		fields = append(fields, model.FieldError{Field: "title", Message: "Title is required"})
	}
	if strings.TrimSpace(in.Description) == "" {
		fields = append(fields, model.FieldError{Field: "description", Message: "Description is required"})
	}
	if !in.GoalAmount.IsPositive() {
		fields = append(fields, model.FieldError{Field: "goalAmount", Message: "Goal amount must be positive"})
	}
	if !in.Deadline.After(s.now()) {
		fields = append(fields, model.FieldError{Field: "deadline", Message: "Deadline must be in the future"})
	}
	if len(fields) > 0 {
		return nil, &model.ValidationError{Fields: fields}
	}

	c := &model.Campaign{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		GoalAmount:  in.GoalAmount,
		Deadline:    in.Deadline,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Campaign created",
		zap.String("campaign_id", c.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return s.campaigns.FindByID(ctx, c.ID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return s.campaigns.FindByID(ctx, id)
}

// Page 活动列表结果
type Page struct {
	Campaigns  []*model.Campaign `json:"campaigns"`
	Pagination query.Pagination  `json:"pagination"`
}

func (s *Service) List(ctx context.Context, f repository.CampaignFilter) (*Page, error) {
	campaigns, total, err := s.campaigns.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	return &Page{Campaigns: campaigns, Pagination: query.NewPagination(f.Page, total)}, nil
}
