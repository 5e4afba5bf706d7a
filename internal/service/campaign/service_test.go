package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
)

type fakeStore struct {
	created []*model.Campaign
}

func (f *fakeStore) Create(_ context.Context, c *model.Campaign) error {
	c.ID = uuid.New()
	c.Status = model.CampaignPending
	f.created = append(f.created, c)
	return nil
}

func (f *fakeStore) FindByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	for _, c := range f.created {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeStore) List(context.Context, repository.CampaignFilter) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(&fakeStore{}, zap.NewNop())

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Title:      " ",
		GoalAmount: decimal.Zero,
		Deadline:   time.Now().Add(-time.Hour),
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(ve.Fields) != 4 {
		t.Errorf("fields = %+v, want 4 errors", ve.Fields)
	}
}

func TestCreatePending(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, zap.NewNop())

	c, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Title:       "School roof",
		Description: "Fix the roof before monsoon",
		GoalAmount:  decimal.NewFromInt(5000),
		Deadline:    time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Status != model.CampaignPending {
		t.Errorf("status = %s, want pending", c.Status)
	}

	page, err := svc.List(context.Background(), repository.CampaignFilter{})
	if err != nil || page.Campaigns == nil {
		t.Errorf("List = %+v, %v; want empty non-nil slice", page, err)
	}
}
