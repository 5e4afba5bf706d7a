package donation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/contracts/mq"
	"crowdfundin/internal/model"
	"crowdfundin/internal/payment"
	"crowdfundin/internal/repository"
	"crowdfundin/pkg/outbox"
)

const testSecret = "gateway-secret"

// memStore 内存实现，WithTx 失败时丢弃本次事务中的写入
type memStore struct {
	campaigns map[uuid.UUID]*model.Campaign
	donors    []*model.DonorEntry
	donations map[string]*model.Donation
	orders    map[string]*model.PaymentOrder
	events    []*outbox.Event
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: map[uuid.UUID]*model.Campaign{},
		donations: map[string]*model.Donation{},
		orders:    map[string]*model.PaymentOrder{},
	}
}

func (m *memStore) addCampaign(goal, current string) *model.Campaign {
	c := &model.Campaign{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Title:         "Clean Water",
		GoalAmount:    decimal.RequireFromString(goal),
		CurrentAmount: decimal.RequireFromString(current),
		Status:        model.CampaignActive,
		Deadline:      time.Now().Add(24 * time.Hour),
	}
	m.campaigns[c.ID] = c
	return c
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) IncrementAmountTx(_ context.Context, _ pgx.Tx, id uuid.UUID, amount decimal.Decimal) (*model.AmountChange, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	prev := c.CurrentAmount
	c.CurrentAmount = c.CurrentAmount.Add(amount)
	return &model.AmountChange{
		Previous: prev,
		Current:  c.CurrentAmount,
		Goal:     c.GoalAmount,
		Title:    c.Title,
		OwnerID:  c.OwnerID,
		Status:   c.Status,
	}, nil
}

func (m *memStore) AddDonorTx(_ context.Context, _ pgx.Tx, d *model.DonorEntry) error {
	m.donors = append(m.donors, d)
	return nil
}

func (m *memStore) MarkCompletedTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	c := m.campaigns[id]
	if !c.Status.AcceptsDonations() || c.CurrentAmount.LessThan(c.GoalAmount) {
		return false, nil
	}
	c.Status = model.CampaignCompleted
	return true, nil
}

func (m *memStore) ExistsByPaymentID(_ context.Context, paymentID string) (bool, error) {
	_, ok := m.donations[paymentID]
	return ok, nil
}

func (m *memStore) InsertTx(_ context.Context, _ pgx.Tx, d *model.Donation) (bool, error) {
	if _, ok := m.donations[d.PaymentID]; ok {
		return false, nil
	}
	d.ID = uuid.New()
	m.donations[d.PaymentID] = d
	return true, nil
}

func (m *memStore) List(context.Context, repository.DonationFilter) ([]*model.DonationView, int, decimal.Decimal, error) {
	return nil, 0, decimal.Zero, nil
}

func (m *memStore) Stats(context.Context, time.Time) (*repository.DonationStats, error) {
	return &repository.DonationStats{}, nil
}

func (m *memStore) Create(_ context.Context, o *model.PaymentOrder) error {
	m.orders[o.OrderID] = o
	return nil
}

func (m *memStore) FindByOrderID(_ context.Context, orderID string) (*model.PaymentOrder, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return o, nil
}

func (m *memStore) MarkPaidTx(_ context.Context, _ pgx.Tx, orderID, paymentID string) error {
	o := m.orders[orderID]
	o.Status = model.OrderPaid
	o.PaymentID = &paymentID
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, _ pgx.Tx, e *outbox.Event) error {
	m.events = append(m.events, e)
	return nil
}

type snapshot struct {
	campaigns map[uuid.UUID]model.Campaign
	donors    int
	donations map[string]*model.Donation
	events    int
}

// WithTx 出错时回滚到调用前的快照
func (m *memStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	snap := snapshot{campaigns: map[uuid.UUID]model.Campaign{}, donors: len(m.donors), events: len(m.events), donations: map[string]*model.Donation{}}
	for id, c := range m.campaigns {
		snap.campaigns[id] = *c
	}
	for k, v := range m.donations {
		snap.donations[k] = v
	}
	if err := fn(nil); err != nil {
		for id, c := range snap.campaigns {
			cp := c
			m.campaigns[id] = &cp
		}
		m.donors = m.donors[:snap.donors]
		m.events = m.events[:snap.events]
		m.donations = snap.donations
		return err
	}
	return nil
}

type fakeGateway struct {
	createFunc func(ctx context.Context, req payment.OrderRequest) (*payment.Order, error)
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	return g.createFunc(ctx, req)
}
func (g *fakeGateway) KeyID() string    { return "rzp_test_key" }
func (g *fakeGateway) Currency() string { return "INR" }

func newTestService(m *memStore, gw *fakeGateway) *Service {
	if gw == nil {
		gw = &fakeGateway{createFunc: func(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
			return &payment.Order{ID: "order_1", Amount: req.Amount, Currency: req.Currency}, nil
		}}
	}
	return NewService(m, m, m, gw, m, m, testSecret, zap.NewNop())
}

func verifyInput(campaignID uuid.UUID, orderID, paymentID, amount string) VerifyPaymentInput {
	return VerifyPaymentInput{
		OrderID:    orderID,
		PaymentID:  paymentID,
		Signature:  payment.Sign(orderID, paymentID, testSecret),
		CampaignID: campaignID,
		Amount:     decimal.RequireFromString(amount),
	}
}

func routingKeys(events []*outbox.Event) []string {
	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = e.RoutingKey
	}
	return keys
}

func TestVerifyPaymentGoalCrossing(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "900")
	svc := newTestService(m, nil)

	d, err := svc.VerifyPayment(context.Background(), uuid.New(), verifyInput(c.ID, "order_9", "pay_9", "150"))
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if d.PaymentStatus != model.PaymentSucceeded {
		t.Errorf("payment status = %s", d.PaymentStatus)
	}

	got := m.campaigns[c.ID]
	if !got.CurrentAmount.Equal(decimal.NewFromInt(1050)) {
		t.Errorf("current amount = %s, want 1050", got.CurrentAmount)
	}
	if got.Status != model.CampaignCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if len(m.donors) != 1 {
		t.Errorf("donor entries = %d, want 1", len(m.donors))
	}

	want := []string{mq.RoutingKeyDonationConfirmed, mq.RoutingKeyCampaignMilestone, mq.RoutingKeyCampaignCompleted}
	keys := routingKeys(m.events)
	if len(keys) != len(want) {
		t.Fatalf("events = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("events = %v, want %v", keys, want)
		}
	}

	var p mq.CampaignMilestonePayload
	if err := json.Unmarshal(m.events[1].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Milestone != 100 {
		t.Errorf("milestone = %d, want 100", p.Milestone)
	}

	// 再次捐款不会重复完成
	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), verifyInput(c.ID, "order_10", "pay_10", "10")); err != nil {
		t.Fatal(err)
	}
	if n := len(m.events); n != 4 {
		t.Errorf("events after second donation = %d, want 4", n)
	}
}

func TestVerifyPaymentDuplicate(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	svc := newTestService(m, nil)
	in := verifyInput(c.ID, "order_1", "pay_1", "100")

	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), in); err != nil {
		t.Fatalf("first VerifyPayment: %v", err)
	}
	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), in); !errors.Is(err, model.ErrAlreadyProcessed) {
		t.Fatalf("second VerifyPayment err = %v, want ErrAlreadyProcessed", err)
	}
	if len(m.donations) != 1 || len(m.donors) != 1 {
		t.Errorf("donations=%d donors=%d, want 1 each", len(m.donations), len(m.donors))
	}
	if !m.campaigns[c.ID].CurrentAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("current amount = %s, want 100", m.campaigns[c.ID].CurrentAmount)
	}
}

func TestVerifyPaymentConcurrentDuplicateRollsBack(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	svc := newTestService(m, nil)
	in := verifyInput(c.ID, "order_1", "pay_1", "100")

	// 模拟另一请求在预检查之后写入了同一个 payment_id
	svc.donations = &racingStore{memStore: m}

	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), in); !errors.Is(err, model.ErrAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrAlreadyProcessed", err)
	}
	if !m.campaigns[c.ID].CurrentAmount.IsZero() || len(m.events) != 0 {
		t.Errorf("transaction must not change totals or write events")
	}
}

// racingStore 预检查时还不存在，插入时已被占用
type racingStore struct {
	*memStore
}

func (r *racingStore) ExistsByPaymentID(context.Context, string) (bool, error) {
	return false, nil
}

func (r *racingStore) InsertTx(context.Context, pgx.Tx, *model.Donation) (bool, error) {
	return false, nil
}

func TestVerifyPaymentInvalidSignature(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	svc := newTestService(m, nil)

	in := verifyInput(c.ID, "order_1", "pay_1", "100")
	in.Signature = payment.Sign("order_1", "pay_1", "wrong-secret")

	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), in); !errors.Is(err, model.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(m.donations) != 0 || len(m.events) != 0 {
		t.Error("invalid signature must not write anything")
	}
}

func TestVerifyPaymentOrderMismatch(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	other := m.addCampaign("500", "0")
	svc := newTestService(m, nil)
	user := uuid.New()

	m.orders["order_1"] = &model.PaymentOrder{OrderID: "order_1", UserID: user, CampaignID: c.ID, AmountMinor: 10000, Status: model.OrderCreated}

	tests := []struct {
		name string
		in   VerifyPaymentInput
	}{
		{"other campaign", verifyInput(other.ID, "order_1", "pay_1", "100")},
		{"other amount", verifyInput(c.ID, "order_1", "pay_1", "250")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.VerifyPayment(context.Background(), user, tt.in); !errors.Is(err, model.ErrOrderMismatch) {
				t.Fatalf("err = %v, want ErrOrderMismatch", err)
			}
		})
	}

	if _, err := svc.VerifyPayment(context.Background(), user, verifyInput(c.ID, "order_1", "pay_1", "100")); err != nil {
		t.Fatalf("matching order: %v", err)
	}
	if m.orders["order_1"].Status != model.OrderPaid {
		t.Error("order should be marked paid")
	}
}

func TestVerifyPaymentUnknownCampaign(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m, nil)

	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), verifyInput(uuid.New(), "order_1", "pay_1", "100")); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateOrder(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	var sent payment.OrderRequest
	gw := &fakeGateway{createFunc: func(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
		sent = req
		return &payment.Order{ID: "order_xyz", Amount: req.Amount, Currency: req.Currency}, nil
	}}
	svc := newTestService(m, gw)
	svc.now = func() time.Time { return time.UnixMilli(1700000012345) }
	user := uuid.New()

	res, err := svc.CreateOrder(context.Background(), user, CreateOrderInput{CampaignID: c.ID, Amount: decimal.RequireFromString("499.90")})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.OrderID != "order_xyz" || res.Amount != 49990 || res.KeyID != "rzp_test_key" {
		t.Errorf("result = %+v", res)
	}
	idStr := c.ID.String()
	if want := "don_00012345_" + idStr[len(idStr)-8:]; sent.Receipt != want {
		t.Errorf("receipt = %s, want %s", sent.Receipt, want)
	}
	if sent.Notes["userId"] != user.String() || sent.Notes["isAnonymous"] != "false" {
		t.Errorf("notes = %v", sent.Notes)
	}
	if o := m.orders["order_xyz"]; o == nil || o.AmountMinor != 49990 {
		t.Errorf("stored order = %+v", o)
	}
}

func TestCreateOrderRejects(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m, nil)

	closed := m.addCampaign("1000", "0")
	closed.Status = model.CampaignCompleted
	ended := m.addCampaign("1000", "0")
	ended.Deadline = time.Now().Add(-time.Hour)
	open := m.addCampaign("1000", "0")

	tests := []struct {
		name   string
		id     uuid.UUID
		amount string
		want   error
	}{
		{"completed campaign", closed.ID, "10", model.ErrCampaignNotAcceptingDonations},
		{"deadline passed", ended.ID, "10", model.ErrCampaignEnded},
		{"unknown campaign", uuid.New(), "10", model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), uuid.New(), CreateOrderInput{CampaignID: tt.id, Amount: decimal.RequireFromString(tt.amount)})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	for _, amount := range []string{"0.5", "100.005"} {
		_, err := svc.CreateOrder(context.Background(), uuid.New(), CreateOrderInput{CampaignID: open.ID, Amount: decimal.RequireFromString(amount)})
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("amount %s: err = %v, want ValidationError", amount, err)
		}
	}
}

func TestVerifyPaymentRejectsSubCentAmount(t *testing.T) {
	m := newMemStore()
	c := m.addCampaign("1000", "0")
	svc := newTestService(m, nil)

	_, err := svc.VerifyPayment(context.Background(), uuid.New(), verifyInput(c.ID, "order_1", "pay_1", "100.005"))
	var ve *model.ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "amount" {
		t.Fatalf("err = %v, want amount ValidationError", err)
	}
	if len(m.donations) != 0 || !m.campaigns[c.ID].CurrentAmount.IsZero() {
		t.Error("rejected amount must not be recorded")
	}

	// 尾随零不算多余的小数位
	if _, err := svc.VerifyPayment(context.Background(), uuid.New(), verifyInput(c.ID, "order_2", "pay_2", "100.500")); err != nil {
		t.Fatalf("100.500: %v", err)
	}
}

func TestMaskDonor(t *testing.T) {
	anon := &model.DonationView{Donation: model.Donation{DonorID: uuid.New(), IsAnonymous: true}, Donor: &model.UserSummary{Name: "Jane", Email: "jane@example.com"}}
	MaskDonor(anon)
	if anon.Donor.Name != "Anonymous" || anon.Donor.Email != "" || anon.DonorID != uuid.Nil {
		t.Errorf("anonymous donor not masked: %+v", anon.Donor)
	}

	named := &model.DonationView{Donor: &model.UserSummary{Name: "Joe", Email: "joe@example.com"}}
	MaskDonor(named)
	if named.Donor.Name != "Joe" || named.Donor.Email != "" {
		t.Errorf("public donor = %+v", named.Donor)
	}
}
