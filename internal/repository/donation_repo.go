package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository/query"
)

type DonationRepository struct {
	db *pgxpool.Pool
}

func NewDonationRepository(db *pgxpool.Pool) *DonationRepository {
	return &DonationRepository{db: db}
}

// ExistsByPaymentID 幂等检查
func (r *DonationRepository) ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM donations WHERE payment_id = $1)`, paymentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment id: %w", err)
	}
	return exists, nil
}

// InsertTx 插入捐款；payment_id 已存在时返回 false 且不写入
func (r *DonationRepository) InsertTx(ctx context.Context, tx pgx.Tx, d *model.Donation) (bool, error) {
	query := `
        INSERT INTO donations (donor_id, campaign_id, amount, payment_id, order_id, signature,
                               payment_status, is_anonymous, message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (payment_id) DO NOTHING
        RETURNING id, created_at, updated_at
    `
	err := tx.QueryRow(ctx, query,
		d.DonorID,
		d.CampaignID,
		d.Amount,
		d.PaymentID,
		d.OrderID,
		d.Signature,
		d.PaymentStatus,
		d.IsAnonymous,
		d.Message,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert donation: %w", err)
	}
	return true, nil
}

const donationViewSelect = `
        SELECT d.id, d.donor_id, d.campaign_id, d.amount, d.payment_id, d.order_id,
               d.payment_status, d.is_anonymous, d.message, d.created_at, d.updated_at,
               u.name, u.email, c.title
        FROM donations d
        JOIN users u ON u.id = d.donor_id
        JOIN campaigns c ON c.id = d.campaign_id`

func scanDonationView(row pgx.Row) (*model.DonationView, error) {
	var v model.DonationView
	donor := &model.UserSummary{}
	campaign := &model.CampaignRef{}
	err := row.Scan(
		&v.ID,
		&v.DonorID,
		&v.CampaignID,
		&v.Amount,
		&v.PaymentID,
		&v.OrderID,
		&v.PaymentStatus,
		&v.IsAnonymous,
		&v.Message,
		&v.CreatedAt,
		&v.UpdatedAt,
		&donor.Name,
		&donor.Email,
		&campaign.Title,
	)
	if err != nil {
		return nil, notFound(err)
	}
	donor.ID = v.DonorID
	campaign.ID = v.CampaignID
	v.Donor = donor
	v.Campaign = campaign
	return &v, nil
}

// DonationFilter 捐款列表筛选（只查成功的捐款）
type DonationFilter struct {
	CampaignID *uuid.UUID
	DonorID    *uuid.UUID
	From       *time.Time
	To         *time.Time
	Sort       query.Sort
	Page       query.Page
}

var DonationSortColumns = map[string]string{
	"createdAt": "d.created_at",
	"amount":    "d.amount",
}

func (f DonationFilter) builder() *query.Builder {
	b := query.New().Where("d.payment_status = ?", model.PaymentSucceeded)
	if f.CampaignID != nil {
		b.Where("d.campaign_id = ?", *f.CampaignID)
	}
	if f.DonorID != nil {
		b.Where("d.donor_id = ?", *f.DonorID)
	}
	if f.From != nil {
		b.Where("d.created_at >= ?", *f.From)
	}
	if f.To != nil {
		b.Where("d.created_at <= ?", *f.To)
	}
	return b
}

// List 返回分页结果、总数和筛选范围内的总金额
func (r *DonationRepository) List(ctx context.Context, f DonationFilter) ([]*model.DonationView, int, decimal.Decimal, error) {
	b := f.builder()

	var total int
	var sum decimal.Decimal
	where := b.WhereClause()
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(d.amount), 0) FROM donations d`+where, b.Args()...).
		Scan(&total, &sum)
	if err != nil {
		return nil, 0, decimal.Zero, fmt.Errorf("count donations: %w", err)
	}

	sql, args := b.OrderBy(f.Sort).Paginate(f.Page).Build(donationViewSelect)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, decimal.Zero, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []*model.DonationView
	for rows.Next() {
		v, err := scanDonationView(rows)
		if err != nil {
			return nil, 0, decimal.Zero, err
		}
		out = append(out, v)
	}
	return out, total, sum, rows.Err()
}

// MonthlyTotal 按月汇总
type MonthlyTotal struct {
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// DonationStats 捐款统计
type DonationStats struct {
	TotalDonations int             `json:"totalDonations"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Monthly        []MonthlyTotal  `json:"monthlyDonations"`
}

// Stats 总数、总金额和最近 12 个月的按月统计
func (r *DonationRepository) Stats(ctx context.Context, since time.Time) (*DonationStats, error) {
	var s DonationStats
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(SUM(amount), 0)
        FROM donations WHERE payment_status = 'succeeded'
    `).Scan(&s.TotalDonations, &s.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("donation totals: %w", err)
	}

	rows, err := r.db.Query(ctx, `
        SELECT EXTRACT(YEAR FROM created_at)::int, EXTRACT(MONTH FROM created_at)::int,
               COUNT(*), COALESCE(SUM(amount), 0)
        FROM donations
        WHERE payment_status = 'succeeded' AND created_at >= $1
        GROUP BY 1, 2
        ORDER BY 1, 2
    `, since)
	if err != nil {
		return nil, fmt.Errorf("monthly donations: %w", err)
	}
	defer rows.Close()

	s.Monthly = []MonthlyTotal{}
	for rows.Next() {
		var m MonthlyTotal
		if err := rows.Scan(&m.Year, &m.Month, &m.Count, &m.Amount); err != nil {
			return nil, err
		}
		s.Monthly = append(s.Monthly, m)
	}
	return &s, rows.Err()
}
