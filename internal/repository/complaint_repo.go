package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
)

type ComplaintRepository struct {
	db *pgxpool.Pool
}

func NewComplaintRepository(db *pgxpool.Pool) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

const complaintSelect = `
        SELECT p.id, p.user_id, u.name, u.email, p.campaign_id, c.title, p.subject, p.description,
               p.status, p.admin_notes, p.resolved_by, p.created_at, p.updated_at
        FROM complaints p
        JOIN users u ON u.id = p.user_id
        JOIN campaigns c ON c.id = p.campaign_id`

func scanComplaint(row pgx.Row) (*model.Complaint, error) {
	var p model.Complaint
	user := &model.UserSummary{}
	campaign := &model.CampaignRef{}
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&user.Name,
		&user.Email,
		&p.CampaignID,
		&campaign.Title,
		&p.Subject,
		&p.Description,
		&p.Status,
		&p.AdminNotes,
		&p.ResolvedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	user.ID = p.UserID
	campaign.ID = p.CampaignID
	p.User = user
	p.Campaign = campaign
	return &p, nil
}

func (r *ComplaintRepository) Create(ctx context.Context, p *model.Complaint) error {
	query := `
        INSERT INTO complaints (user_id, campaign_id, subject, description)
        VALUES ($1, $2, $3, $4)
        RETURNING id, status, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, p.UserID, p.CampaignID, p.Subject, p.Description).
		Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (r *ComplaintRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	return scanComplaint(r.db.QueryRow(ctx, complaintSelect+` WHERE p.id = $1`, id))
}

// ComplaintFilter 投诉列表筛选；UserID 非空时只查该用户的投诉
type ComplaintFilter struct {
	UserID *uuid.UUID
	Status model.ComplaintStatus
	Search string
	Sort   query.Sort
	Page   query.Page
}

var ComplaintSortColumns = map[string]string{
	"createdAt": "p.created_at",
	"updatedAt": "p.updated_at",
	"status":    "p.status",
}

func (r *ComplaintRepository) List(ctx context.Context, f ComplaintFilter) ([]*model.Complaint, int, error) {
	b := query.New().
		WhereIf(f.Status != "", "p.status = ?", f.Status).
		Search(f.Search, "p.subject", "p.description")
	if f.UserID != nil {
		b.Where("p.user_id = ?", *f.UserID)
	}

	var total int
	countSQL, countArgs := b.BuildCount("complaints p")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}

	sql, args := b.OrderBy(f.Sort).Paginate(f.Page).Build(complaintSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	var out []*model.Complaint
	for rows.Next() {
		p, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Update 写入新状态和备注；状态迁移的合法性由 service 校验，
// expected 用于防止并发修改（状态已变化时返回 model.ErrInvalidTransition）
func (r *ComplaintRepository) Update(ctx context.Context, id uuid.UUID, expected, status model.ComplaintStatus, notes *string, resolvedBy *uuid.UUID) (*model.Complaint, error) {
	query := `
        UPDATE complaints SET
            status      = $3,
            admin_notes = COALESCE($4, admin_notes),
            resolved_by = COALESCE($5, resolved_by),
            updated_at  = NOW()
        WHERE id = $1 AND status = $2
    `
	tag, err := r.db.Exec(ctx, query, id, expected, status, notes, resolvedBy)
	if err != nil {
		return nil, fmt.Errorf("update complaint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, model.ErrInvalidTransition
	}
	return r.FindByID(ctx, id)
}
