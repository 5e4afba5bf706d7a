package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crowdfundin/internal/repository"
)

type fakeCampaigns struct {
	drift     []repository.Drift
	fixed     []uuid.UUID
	fixErr    map[uuid.UUID]error
	expiredAt time.Time
}

func (f *fakeCampaigns) FindDrift(context.Context) ([]repository.Drift, error) {
	return f.drift, nil
}

func (f *fakeCampaigns) FixDrift(_ context.Context, id uuid.UUID) error {
	if err := f.fixErr[id]; err != nil {
		return err
	}
	f.fixed = append(f.fixed, id)
	return nil
}

func (f *fakeCampaigns) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.expiredAt = now
	return 2, nil
}

func drift(current, ledger int64) repository.Drift {
	return repository.Drift{
		CampaignID:    uuid.New(),
		CurrentAmount: decimal.NewFromInt(current),
		LedgerAmount:  decimal.NewFromInt(ledger),
	}
}

func TestRunOnceReportOnly(t *testing.T) {
	store := &fakeCampaigns{drift: []repository.Drift{drift(1000, 900)}}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	job := NewJob(store, zap.NewNop())
	job.now = func() time.Time { return now }

	r, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Drift) != 1 || r.Fixed != 0 || len(store.fixed) != 0 {
		t.Errorf("report = %+v, fixed = %v", r, store.fixed)
	}
	if r.Expired != 2 || !store.expiredAt.Equal(now) {
		t.Errorf("expired = %d at %v", r.Expired, store.expiredAt)
	}
}

func TestRunOnceFixContinuesPastFailures(t *testing.T) {
	a, b, c := drift(10, 20), drift(5, 0), drift(7, 8)
	store := &fakeCampaigns{
		drift:  []repository.Drift{a, b, c},
		fixErr: map[uuid.UUID]error{b.CampaignID: errors.New("lock timeout")},
	}
	r, err := NewJob(store, zap.NewNop()).WithFix(true).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Fixed != 2 || len(store.fixed) != 2 || store.fixed[0] != a.CampaignID || store.fixed[1] != c.CampaignID {
		t.Errorf("fixed = %v (%d)", store.fixed, r.Fixed)
	}
}
