package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfundin/internal/model"
)

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 保存网关返回的订单
func (r *OrderRepository) Create(ctx context.Context, o *model.PaymentOrder) error {
	query := `
        INSERT INTO payment_orders (order_id, user_id, campaign_id, amount_minor, currency, receipt, status)
        VALUES ($1, $2, $3, $4, $5, $6, 'created')
        RETURNING status, created_at
    `
	err := r.db.QueryRow(ctx, query, o.OrderID, o.UserID, o.CampaignID, o.AmountMinor, o.Currency, o.Receipt).
		Scan(&o.Status, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

// FindByOrderID 订单不存在时返回 model.ErrNotFound
func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	query := `
        SELECT order_id, user_id, campaign_id, amount_minor, currency, receipt, status, payment_id, created_at
        FROM payment_orders
        WHERE order_id = $1
    `
	var o model.PaymentOrder
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&o.OrderID,
		&o.UserID,
		&o.CampaignID,
		&o.AmountMinor,
		&o.Currency,
		&o.Receipt,
		&o.Status,
		&o.PaymentID,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// MarkPaidTx 在捐款事务中标记订单已支付
func (r *OrderRepository) MarkPaidTx(ctx context.Context, tx pgx.Tx, orderID, paymentID string) error {
	_, err := tx.Exec(ctx, `
        UPDATE payment_orders SET status = 'paid', payment_id = $2, updated_at = NOW()
        WHERE order_id = $1
    `, orderID, paymentID)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}
