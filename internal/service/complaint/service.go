package complaint

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
)

type Store interface {
	Create(ctx context.Context, p *model.Complaint) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Complaint, error)
	List(ctx context.Context, f repository.ComplaintFilter) ([]*model.Complaint, int, error)
}

type CampaignFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
}

type Service struct {
	complaints Store
	campaigns  CampaignFinder
	logger     *zap.Logger
}

func NewService(complaints Store, campaigns CampaignFinder, logger *zap.Logger) *Service {
	return &Service{complaints: complaints, campaigns: campaigns, logger: logger}
}

type CreateInput struct {
	CampaignID  uuid.UUID
	Subject     string
	Description string
}

func (in CreateInput) validate() error {
	var fields []model.FieldError
	if n := utf8.RuneCountInString(in.Subject); n < 1 || n > 200 {
		fields = append(fields, model.FieldError{Field: "subject", Message: "Subject must be between 1 and 200 characters"})
	}
	if n := utf8.RuneCountInString(in.Description); n < 10 || n > 1000 {
		fields = append(fields, model.FieldError{Field: "description", Message: "Description must be between 10 and 1000 characters"})
	}
	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*model.Complaint, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.campaigns.FindByID(ctx, in.CampaignID); err != nil {
		return nil, err
	}

	p := &model.Complaint{
		UserID:      userID,
		CampaignID:  in.CampaignID,
		Subject:     in.Subject,
		Description: in.Description,
	}
	if err := s.complaints.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Complaint filed",
		zap.String("complaint_id", p.ID.String()),
		zap.String("campaign_id", in.CampaignID.String()),
	)
	return s.complaints.FindByID(ctx, p.ID)
}

type Page struct {
	Complaints []*model.Complaint `json:"complaints"`
	Pagination query.Pagination   `json:"pagination"`
}

// ListMine 当前用户的投诉，status 为空或 all 时不过滤
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, status string, page query.Page) (*Page, error) {
	f := repository.ComplaintFilter{
		UserID: &userID,
		Sort:   query.Sort{Column: "p.created_at", Desc: true},
		Page:   page,
	}
	if status != "" && status != "all" {
		st := model.ComplaintStatus(status)
		if !st.Valid() {
			return nil, model.NewValidationError("status", "Invalid complaint status")
		}
		f.Status = st
	}

	complaints, total, err := s.complaints.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if complaints == nil {
		complaints = []*model.Complaint{}
	}
	return &Page{Complaints: complaints, Pagination: query.NewPagination(page, total)}, nil
}
