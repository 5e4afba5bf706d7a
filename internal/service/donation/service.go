// Package donation handles payment orders, payment confirmation and the
// donation ledger. A confirmed payment is written in one transaction together
// with the campaign total, the donor entry and the outbox events that drive
// the confirmation and milestone emails.
package donation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"crowdfundin/contracts/mq"
	"crowdfundin/internal/model"
	"crowdfundin/internal/payment"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/logger"
	"crowdfundin/pkg/metrics"
	"crowdfundin/pkg/otel"
	"crowdfundin/pkg/outbox"
	"crowdfundin/pkg/trace"
)

type CampaignStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	IncrementAmountTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (*model.AmountChange, error)
	AddDonorTx(ctx context.Context, tx pgx.Tx, d *model.DonorEntry) error
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

type DonationStore interface {
	ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error)
	InsertTx(ctx context.Context, tx pgx.Tx, d *model.Donation) (bool, error)
	List(ctx context.Context, f repository.DonationFilter) ([]*model.DonationView, int, decimal.Decimal, error)
	Stats(ctx context.Context, since time.Time) (*repository.DonationStats, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *model.PaymentOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error)
	MarkPaidTx(ctx context.Context, tx pgx.Tx, orderID, paymentID string) error
}

type Gateway interface {
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error)
	KeyID() string
	Currency() string
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type Service struct {
	campaigns CampaignStore
	donations DonationStore
	orders    OrderStore
	gateway   Gateway
	tx        TxRunner
	outbox    outbox.Writer
	keySecret string
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	campaigns CampaignStore,
	donations DonationStore,
	orders OrderStore,
	gateway Gateway,
	tx TxRunner,
	outboxWriter outbox.Writer,
	keySecret string,
	logger *zap.Logger,
) *Service {
	return &Service{
		campaigns: campaigns,
		donations: donations,
		orders:    orders,
		gateway:   gateway,
		tx:        tx,
		outbox:    outboxWriter,
		keySecret: keySecret,
		logger:    logger,
		now:       time.Now,
	}
}

var minAmount = decimal.NewFromInt(1)

// validateAmount 金额至少为 1，且最多两位小数（与 NUMERIC(14,2) 一致）
func validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(minAmount) {
		return model.NewValidationError("amount", "Amount must be at least 1")
	}
	if !amount.Equal(amount.Round(2)) {
		return model.NewValidationError("amount", "Amount cannot have more than 2 decimal places")
	}
	return nil
}

type CreateOrderInput struct {
	CampaignID  uuid.UUID
	Amount      decimal.Decimal
	IsAnonymous bool
}

type OrderResult struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// CreateOrder 校验活动状态后在网关创建订单，并保存订单用于确认支付时核对
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, in CreateOrderInput) (*OrderResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.FindByID(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.AcceptsDonations() {
		return nil, model.ErrCampaignNotAcceptingDonations
	}
	if s.now().After(campaign.Deadline) {
		return nil, model.ErrCampaignEnded
	}

	req := payment.OrderRequest{
		Amount:   model.ToMinorUnits(in.Amount),
		Currency: s.gateway.Currency(),
		Receipt:  receipt(s.now(), in.CampaignID),
		Notes: map[string]string{
			"campaignId":  in.CampaignID.String(),
			"userId":      userID.String(),
			"isAnonymous": strconv.FormatBool(in.IsAnonymous),
		},
	}
	order, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	po := &model.PaymentOrder{
		OrderID:     order.ID,
		UserID:      userID,
		CampaignID:  in.CampaignID,
		AmountMinor: order.Amount,
		Currency:    order.Currency,
		Receipt:     req.Receipt,
		Status:      model.OrderCreated,
	}
	if err := s.orders.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("save payment order: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Payment order created",
		zap.String("order_id", order.ID),
		zap.String("campaign_id", in.CampaignID.String()),
		zap.Int64("amount", order.Amount),
	)

	return &OrderResult{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// receipt 形如 don_<毫秒时间戳后8位>_<活动ID后8位>
func receipt(now time.Time, campaignID uuid.UUID) string {
	return "don_" + lastN(strconv.FormatInt(now.UnixMilli(), 10), 8) + "_" + lastN(campaignID.String(), 8)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type VerifyPaymentInput struct {
	OrderID     string
	PaymentID   string
	Signature   string
	CampaignID  uuid.UUID
	Amount      decimal.Decimal
	Message     string
	IsAnonymous bool
}

// VerifyPayment 校验签名并记账。任何完整性错误都不会写入资金记录
func (s *Service) VerifyPayment(ctx context.Context, userID uuid.UUID, in VerifyPaymentInput) (*model.Donation, error) {
	ctx, span := otel.StartSpan(ctx, "donation.verify_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("campaign.id", in.CampaignID.String()),
		attribute.String("payment.order_id", in.OrderID),
	)

	donation, err := s.verifyPayment(ctx, userID, in)
	metrics.IncrementDonationConfirm(confirmOutcome(err))
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	return donation, nil
}

func confirmOutcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, model.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, model.ErrAlreadyProcessed):
		return "duplicate"
	case errors.Is(err, model.ErrOrderMismatch):
		return "order_mismatch"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) verifyPayment(ctx context.Context, userID uuid.UUID, in VerifyPaymentInput) (*model.Donation, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("order_id", in.OrderID),
		zap.String("payment_id", in.PaymentID),
	)

	if !payment.VerifySignature(in.OrderID, in.PaymentID, in.Signature, s.keySecret) {
		log.Warn("Payment signature mismatch")
		return nil, model.ErrInvalidSignature
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if len([]rune(in.Message)) > 500 {
		return nil, model.NewValidationError("message", "Message cannot exceed 500 characters")
	}

	exists, err := s.donations.ExistsByPaymentID(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, model.ErrAlreadyProcessed
	}

	order, err := s.orders.FindByOrderID(ctx, in.OrderID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		order = nil
	case err != nil:
		return nil, err
	default:
		if err := checkOrder(order, userID, in); err != nil {
			log.Warn("Payment order mismatch", zap.Error(err))
			return nil, err
		}
	}

	if _, err := s.campaigns.FindByID(ctx, in.CampaignID); err != nil {
		return nil, err
	}

	now := s.now()
	d := &model.Donation{
		DonorID:       userID,
		CampaignID:    in.CampaignID,
		Amount:        in.Amount,
		PaymentID:     in.PaymentID,
		OrderID:       in.OrderID,
		Signature:     in.Signature,
		PaymentStatus: model.PaymentSucceeded,
		IsAnonymous:   in.IsAnonymous,
		Message:       in.Message,
	}

	var change *model.AmountChange
	var milestones []int
	var completed bool
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		inserted, err := s.donations.InsertTx(ctx, tx, d)
		if err != nil {
			return err
		}
		if !inserted {
			// 并发的重复请求被唯一约束拦下
			return model.ErrAlreadyProcessed
		}

		change, err = s.campaigns.IncrementAmountTx(ctx, tx, in.CampaignID, in.Amount)
		if err != nil {
			return err
		}

		if err := s.campaigns.AddDonorTx(ctx, tx, &model.DonorEntry{
			CampaignID:  in.CampaignID,
			UserID:      userID,
			DonationID:  d.ID,
			Amount:      in.Amount,
			IsAnonymous: in.IsAnonymous,
			DonatedAt:   now,
		}); err != nil {
			return err
		}

		completed, err = s.campaigns.MarkCompletedTx(ctx, tx, in.CampaignID)
		if err != nil {
			return err
		}

		if order != nil {
			if err := s.orders.MarkPaidTx(ctx, tx, in.OrderID, in.PaymentID); err != nil {
				return err
			}
		}

		milestones = CrossedMilestones(change.Previous, change.Current, change.Goal)
		return s.writeEvents(ctx, tx, d, change, milestones, completed, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.AddDonationAmount(in.Amount.InexactFloat64())
	for _, m := range milestones {
		metrics.IncrementMilestone(strconv.Itoa(m))
	}
	log.Info("Donation confirmed",
		zap.String("donation_id", d.ID.String()),
		zap.String("campaign_id", in.CampaignID.String()),
		zap.String("amount", in.Amount.String()),
		zap.String("campaign_total", change.Current.String()),
		zap.Ints("milestones", milestones),
		zap.Bool("campaign_completed", completed),
	)
	return d, nil
}

func checkOrder(order *model.PaymentOrder, userID uuid.UUID, in VerifyPaymentInput) error {
	if order.Status == model.OrderPaid {
		return model.ErrAlreadyProcessed
	}
	if order.CampaignID != in.CampaignID || order.UserID != userID {
		return model.ErrOrderMismatch
	}
	if order.AmountMinor != model.ToMinorUnits(in.Amount) {
		return model.ErrOrderMismatch
	}
	return nil
}

func (s *Service) writeEvents(ctx context.Context, tx pgx.Tx, d *model.Donation, change *model.AmountChange, milestones []int, completed bool, now time.Time) error {
	traceID := trace.FromContext(ctx)
	campaignID := d.CampaignID.String()

	err := outbox.InsertEventInTx(ctx, tx, s.outbox, "donation", d.ID.String(), mq.RoutingKeyDonationConfirmed,
		mq.DonationConfirmedPayload{
			DonationID:    d.ID.String(),
			CampaignID:    campaignID,
			CampaignTitle: change.Title,
			DonorID:       d.DonorID.String(),
			Amount:        d.Amount.String(),
			PaymentID:     d.PaymentID,
			IsAnonymous:   d.IsAnonymous,
			ConfirmedAt:   now,
			TraceID:       traceID,
		})
	if err != nil {
		return err
	}

	for _, m := range milestones {
		err := outbox.InsertEventInTx(ctx, tx, s.outbox, "campaign", campaignID, mq.RoutingKeyCampaignMilestone,
			mq.CampaignMilestonePayload{
				CampaignID:    campaignID,
				CampaignTitle: change.Title,
				Milestone:     m,
				CurrentAmount: change.Current.String(),
				GoalAmount:    change.Goal.String(),
				TraceID:       traceID,
			})
		if err != nil {
			return err
		}
	}

	if completed {
		return outbox.InsertEventInTx(ctx, tx, s.outbox, "campaign", campaignID, mq.RoutingKeyCampaignCompleted,
			mq.CampaignCompletedPayload{
				CampaignID:    campaignID,
				CampaignTitle: change.Title,
				OwnerID:       change.OwnerID.String(),
				CurrentAmount: change.Current.String(),
				GoalAmount:    change.Goal.String(),
				CompletedAt:   now,
				TraceID:       traceID,
			})
	}
	return nil
}

// Page 捐款列表结果
type Page struct {
	Donations   []*model.DonationView `json:"donations"`
	Pagination  query.Pagination      `json:"pagination"`
	TotalAmount decimal.Decimal       `json:"totalAmount"`
}

func newPage(views []*model.DonationView, p query.Page, total int, sum decimal.Decimal) *Page {
	if views == nil {
		views = []*model.DonationView{}
	}
	return &Page{Donations: views, Pagination: query.NewPagination(p, total), TotalAmount: sum}
}

var newestFirst = query.Sort{Column: "d.created_at", Desc: true}

// ListForCampaign 公开列表：匿名捐款隐藏捐款人，且不返回邮箱
func (s *Service) ListForCampaign(ctx context.Context, campaignID uuid.UUID, p query.Page) (*Page, error) {
	views, total, sum, err := s.donations.List(ctx, repository.DonationFilter{
		CampaignID: &campaignID,
		Sort:       newestFirst,
		Page:       p,
	})
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		MaskDonor(v)
	}
	return newPage(views, p, total, sum), nil
}

// MaskDonor 公开展示前处理捐款人信息
func MaskDonor(v *model.DonationView) {
	if v.IsAnonymous {
		v.DonorID = uuid.Nil
		v.Donor = &model.UserSummary{Name: "Anonymous"}
		return
	}
	if v.Donor != nil {
		v.Donor.Email = ""
	}
}

func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, p query.Page) (*Page, error) {
	views, total, sum, err := s.donations.List(ctx, repository.DonationFilter{
		DonorID: &userID,
		Sort:    newestFirst,
		Page:    p,
	})
	if err != nil {
		return nil, err
	}
	return newPage(views, p, total, sum), nil
}

// History 管理后台捐款历史，支持按捐款人、活动和时间筛选
func (s *Service) History(ctx context.Context, f repository.DonationFilter) (*Page, error) {
	views, total, sum, err := s.donations.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return newPage(views, f.Page, total, sum), nil
}

// Stats 总数、总金额和最近 12 个月的按月统计
func (s *Service) Stats(ctx context.Context) (*repository.DonationStats, error) {
	return s.donations.Stats(ctx, s.now().AddDate(0, -12, 0))
}
