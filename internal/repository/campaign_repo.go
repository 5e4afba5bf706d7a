package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
)

type CampaignRepository struct {
	db *pgxpool.Pool
}

func NewCampaignRepository(db *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignSelect = `
        SELECT c.id, c.owner_id, u.name, u.email, c.title, c.description, c.category,
               c.goal_amount, c.current_amount, c.status, c.deadline, c.is_verified,
               c.verified_by, c.verified_at, c.rejection_reason, c.created_at, c.updated_at,
               (SELECT COUNT(*) FROM campaign_donors d WHERE d.campaign_id = c.id)
        FROM campaigns c
        JOIN users u ON u.id = c.owner_id`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var owner model.UserSummary
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&owner.Name,
		&owner.Email,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.GoalAmount,
		&c.CurrentAmount,
		&c.Status,
		&c.Deadline,
		&c.IsVerified,
		&c.VerifiedBy,
		&c.VerifiedAt,
		&c.RejectionReason,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DonorCount,
	)
	if err != nil {
		return nil, notFound(err)
	}
	owner.ID = c.OwnerID
	c.Owner = &owner
	return &c, nil
}

// Create inserts a new campaign in pending status.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	query := `
        INSERT INTO campaigns (owner_id, title, description, category, goal_amount, deadline, status)
        VALUES ($1, $2, $3, $4, $5, $6, 'pending')
        RETURNING id, current_amount, status, created_at, updated_at
    `
	return r.db.QueryRow(ctx, query, c.OwnerID, c.Title, c.Description, c.Category, c.GoalAmount, c.Deadline).
		Scan(&c.ID, &c.CurrentAmount, &c.Status, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return scanCampaign(r.db.QueryRow(ctx, campaignSelect+` WHERE c.id = $1`, id))
}

// CampaignFilter 活动列表筛选
type CampaignFilter struct {
	Search   string
	Status   model.CampaignStatus
	Category string
	OwnerID  *uuid.UUID
	// OnlyUnverified 待审核：pending 且未认证
	OnlyUnverified bool
	Sort           query.Sort
	Page           query.Page
}

var CampaignSortColumns = map[string]string{
	"createdAt":     "c.created_at",
	"deadline":      "c.deadline",
	"goalAmount":    "c.goal_amount",
	"currentAmount": "c.current_amount",
	"title":         "c.title",
}

func (r *CampaignRepository) List(ctx context.Context, f CampaignFilter) ([]*model.Campaign, int, error) {
	b := query.New().
		Search(f.Search, "c.title", "c.description").
		WhereIf(f.Status != "", "c.status = ?", f.Status).
		WhereIf(f.Category != "", "c.category = ?", f.Category).
		WhereIf(f.OnlyUnverified, "c.status = 'pending' AND NOT c.is_verified")
	if f.OwnerID != nil {
		b.Where("c.owner_id = ?", *f.OwnerID)
	}
	b.OrderBy(f.Sort).Paginate(f.Page)

	var total int
	countSQL, countArgs := b.BuildCount("campaigns c")
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	sql, args := b.Build(campaignSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

// Verify 审核只允许从 pending 出发；其他状态返回 model.ErrInvalidTransition
func (r *CampaignRepository) Verify(ctx context.Context, id uuid.UUID, approve bool, reason string, actor uuid.UUID) (*model.Campaign, error) {
	next := model.CampaignRejected
	if approve {
		next = model.CampaignActive
		reason = ""
	}
	query := `
        UPDATE campaigns SET
            status           = $2,
            is_verified      = $3,
            verified_by      = $4,
            verified_at      = NOW(),
            rejection_reason = $5,
            updated_at       = NOW()
        WHERE id = $1 AND status = 'pending'
    `
	tag, err := r.db.Exec(ctx, query, id, next, approve, actor, reason)
	if err != nil {
		return nil, fmt.Errorf("verify campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// 区分不存在和状态不对
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, model.ErrInvalidTransition
	}
	return r.FindByID(ctx, id)
}

// SetStatus 管理员直接修改状态
func (r *CampaignRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.CampaignStatus) (*model.Campaign, error) {
	tag, err := r.db.Exec(ctx, `UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return nil, fmt.Errorf("set campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, model.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// IncrementAmountTx 原子累加已筹金额，返回累加前后的金额
func (r *CampaignRepository) IncrementAmountTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (*model.AmountChange, error) {
	query := `
        UPDATE campaigns
        SET current_amount = current_amount + $2, updated_at = NOW()
        WHERE id = $1
        RETURNING current_amount - $2, current_amount, goal_amount, title, owner_id, status
    `
	var ch model.AmountChange
	err := tx.QueryRow(ctx, query, id, amount).
		Scan(&ch.Previous, &ch.Current, &ch.Goal, &ch.Title, &ch.OwnerID, &ch.Status)
	if err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

// AddDonorTx 追加捐款人记录
func (r *CampaignRepository) AddDonorTx(ctx context.Context, tx pgx.Tx, d *model.DonorEntry) error {
	query := `
        INSERT INTO campaign_donors (campaign_id, user_id, donation_id, amount, is_anonymous, donated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := tx.Exec(ctx, query, d.CampaignID, d.UserID, d.DonationID, d.Amount, d.IsAnonymous, d.DonatedAt)
	if err != nil {
		return fmt.Errorf("insert donor entry: %w", err)
	}
	return nil
}

// MarkCompletedTx 达到目标时置为 completed；只有第一次会返回 true。
// 已取消、过期或被拒的活动保持原状态
func (r *CampaignRepository) MarkCompletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `
        UPDATE campaigns
        SET status = 'completed', updated_at = NOW()
        WHERE id = $1 AND status IN ('pending', 'active') AND current_amount >= goal_amount
    `
	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark campaign completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUniqueDonors 活动的所有捐款人，按邮箱去重
func (r *CampaignRepository) ListUniqueDonors(ctx context.Context, campaignID uuid.UUID) ([]model.Recipient, error) {
	query := `
        SELECT DISTINCT ON (lower(u.email)) u.id, u.name, u.email
        FROM campaign_donors d
        JOIN users u ON u.id = d.user_id
        WHERE d.campaign_id = $1
        ORDER BY lower(u.email), u.id
    `
	rows, err := r.db.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign donors: %w", err)
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var rc model.Recipient
		if err := rows.Scan(&rc.UserID, &rc.Name, &rc.Email); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Drift 已筹金额与捐款流水不一致的活动
type Drift struct {
	CampaignID    uuid.UUID
	CurrentAmount decimal.Decimal
	LedgerAmount  decimal.Decimal
}

// FindDrift 对比 current_amount 和成功捐款总额
func (r *CampaignRepository) FindDrift(ctx context.Context) ([]Drift, error) {
	query := `
        SELECT c.id, c.current_amount, COALESCE(SUM(d.amount), 0)
        FROM campaigns c
        LEFT JOIN donations d ON d.campaign_id = c.id AND d.payment_status = 'succeeded'
        GROUP BY c.id, c.current_amount
        HAVING c.current_amount <> COALESCE(SUM(d.amount), 0)
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find campaign drift: %w", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.CampaignID, &d.CurrentAmount, &d.LedgerAmount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FixDrift 以捐款流水为准修正 current_amount
func (r *CampaignRepository) FixDrift(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE campaigns c
        SET current_amount = COALESCE((
                SELECT SUM(d.amount) FROM donations d
                WHERE d.campaign_id = c.id AND d.payment_status = 'succeeded'
            ), 0),
            updated_at = NOW()
        WHERE c.id = $1
    `
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("fix campaign drift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ExpireOverdue 截止日期已过的 active 活动置为 expired
func (r *CampaignRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE campaigns SET status = 'expired', updated_at = NOW() WHERE status = 'active' AND deadline < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire campaigns: %w", err)
	}
	return tag.RowsAffected(), nil
}

