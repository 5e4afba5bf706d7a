package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfundin/internal/model"
	"crowdfundin/internal/repository"
	"crowdfundin/internal/repository/query"
	"crowdfundin/pkg/rbac"
)

// 只实现用到的方法，其余为 nil 时调用会 panic
type fakeUsers struct {
	UserStore
	updateFunc func(id uuid.UUID, upd repository.UserUpdate, actor uuid.UUID) (*model.User, error)
	lastFilter repository.UserFilter
}

func (f *fakeUsers) Update(_ context.Context, id uuid.UUID, upd repository.UserUpdate, actor uuid.UUID) (*model.User, error) {
	return f.updateFunc(id, upd, actor)
}

func (f *fakeUsers) List(_ context.Context, flt repository.UserFilter) ([]*model.User, int, error) {
	f.lastFilter = flt
	return nil, 0, nil
}

type fakeCampaigns struct {
	CampaignStore
	statuses map[uuid.UUID]model.CampaignStatus
}

func (f *fakeCampaigns) Verify(_ context.Context, id uuid.UUID, approve bool, reason string, _ uuid.UUID) (*model.Campaign, error) {
	st, ok := f.statuses[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if st != model.CampaignPending {
		return nil, model.ErrInvalidTransition
	}
	next := model.CampaignRejected
	if approve {
		next = model.CampaignActive
		reason = ""
	}
	f.statuses[id] = next
	return &model.Campaign{ID: id, Status: next, IsVerified: approve, RejectionReason: reason}, nil
}

func (f *fakeCampaigns) SetStatus(_ context.Context, id uuid.UUID, status model.CampaignStatus) (*model.Campaign, error) {
	f.statuses[id] = status
	return &model.Campaign{ID: id, Status: status}, nil
}

type fakeComplaints struct {
	items map[uuid.UUID]*model.Complaint
}

func (f *fakeComplaints) FindByID(_ context.Context, id uuid.UUID) (*model.Complaint, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeComplaints) List(context.Context, repository.ComplaintFilter) ([]*model.Complaint, int, error) {
	return nil, 0, nil
}

func (f *fakeComplaints) Update(_ context.Context, id uuid.UUID, expected, status model.ComplaintStatus, notes *string, resolvedBy *uuid.UUID) (*model.Complaint, error) {
	p := f.items[id]
	if p.Status != expected {
		return nil, model.ErrInvalidTransition
	}
	p.Status = status
	if notes != nil {
		p.AdminNotes = *notes
	}
	if resolvedBy != nil {
		p.ResolvedBy = resolvedBy
	}
	cp := *p
	return &cp, nil
}

type statsFunc func(ctx context.Context, since time.Time) (*repository.DashboardStats, error)

func (f statsFunc) Dashboard(ctx context.Context, since time.Time) (*repository.DashboardStats, error) {
	return f(ctx, since)
}

var admin = model.Actor{ID: uuid.New(), Role: rbac.RoleAdmin}

func ptr[T any](v T) *T { return &v }

func TestUpdateComplaintTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     model.ComplaintStatus
		to       model.ComplaintStatus
		wantErr  error
		resolved bool
	}{
		{"pending to in_review", model.ComplaintPending, model.ComplaintInReview, nil, false},
		{"pending to dismissed", model.ComplaintPending, model.ComplaintDismissed, nil, true},
		{"pending to resolved", model.ComplaintPending, model.ComplaintResolved, model.ErrInvalidTransition, false},
		{"in_review to resolved", model.ComplaintInReview, model.ComplaintResolved, nil, true},
		{"resolved is terminal", model.ComplaintResolved, model.ComplaintInReview, model.ErrInvalidTransition, false},
		{"dismissed is terminal", model.ComplaintDismissed, model.ComplaintPending, model.ErrInvalidTransition, false},
		{"notes only", model.ComplaintResolved, model.ComplaintResolved, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			store := &fakeComplaints{items: map[uuid.UUID]*model.Complaint{id: {ID: id, Status: tt.from}}}
			svc := NewService(nil, nil, store, nil, zap.NewNop())

			p, err := svc.UpdateComplaint(context.Background(), admin, id, UpdateComplaintInput{
				Status:     tt.to,
				AdminNotes: ptr("checked"),
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				if store.items[id].Status != tt.from {
					t.Errorf("status changed to %s on rejected transition", store.items[id].Status)
				}
				return
			}
			if p.Status != tt.to || p.AdminNotes != "checked" {
				t.Errorf("complaint = %+v", p)
			}
			if got := p.ResolvedBy != nil; got != tt.resolved {
				t.Errorf("resolvedBy set = %v, want %v", got, tt.resolved)
			}
		})
	}
}

func TestUpdateComplaintValidation(t *testing.T) {
	svc := NewService(nil, nil, &fakeComplaints{}, nil, zap.NewNop())
	_, err := svc.UpdateComplaint(context.Background(), admin, uuid.New(), UpdateComplaintInput{
		Status:     "closed",
		AdminNotes: ptr(strings.Repeat("n", 501)),
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Fatalf("err = %v, want two field errors", err)
	}

	_, err = svc.UpdateComplaint(context.Background(), admin, uuid.New(), UpdateComplaintInput{Status: model.ComplaintInReview})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing complaint err = %v", err)
	}
}

func TestVerifyCampaignOnlyFromPending(t *testing.T) {
	pending, active := uuid.New(), uuid.New()
	store := &fakeCampaigns{statuses: map[uuid.UUID]model.CampaignStatus{
		pending: model.CampaignPending,
		active:  model.CampaignActive,
	}}
	svc := NewService(nil, store, nil, nil, zap.NewNop())
	ctx := context.Background()

	c, err := svc.VerifyCampaign(ctx, admin, pending, false, "missing documents")
	if err != nil {
		t.Fatalf("VerifyCampaign: %v", err)
	}
	if c.Status != model.CampaignRejected || c.RejectionReason != "missing documents" {
		t.Errorf("campaign = %+v", c)
	}

	if _, err := svc.VerifyCampaign(ctx, admin, active, true, ""); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("verify active err = %v, want ErrInvalidTransition", err)
	}
}

func TestSetCampaignStatus(t *testing.T) {
	id := uuid.New()
	store := &fakeCampaigns{statuses: map[uuid.UUID]model.CampaignStatus{id: model.CampaignPending}}
	svc := NewService(nil, store, nil, nil, zap.NewNop())

	if _, err := svc.SetCampaignStatus(context.Background(), admin, id, model.CampaignCancelled); err != nil {
		t.Fatalf("SetCampaignStatus: %v", err)
	}
	if store.statuses[id] != model.CampaignCancelled {
		t.Errorf("status = %s", store.statuses[id])
	}

	var ve *model.ValidationError
	for _, st := range []model.CampaignStatus{model.CampaignPending, model.CampaignRejected, "archived"} {
		if _, err := svc.SetCampaignStatus(context.Background(), admin, id, st); !errors.As(err, &ve) {
			t.Errorf("status %q err = %v, want validation error", st, err)
		}
	}
}

func TestUpdateUser(t *testing.T) {
	users := &fakeUsers{}
	users.updateFunc = func(id uuid.UUID, upd repository.UserUpdate, actor uuid.UUID) (*model.User, error) {
		if actor != admin.ID {
			t.Errorf("actor = %s", actor)
		}
		return &model.User{ID: id, Role: *upd.Role}, nil
	}
	svc := NewService(users, nil, nil, nil, zap.NewNop())

	u, err := svc.UpdateUser(context.Background(), admin, uuid.New(), UpdateUserInput{Role: ptr(rbac.RoleCampaignOwner)})
	if err != nil || u.Role != rbac.RoleCampaignOwner {
		t.Fatalf("UpdateUser = %+v, %v", u, err)
	}

	var ve *model.ValidationError
	if _, err := svc.UpdateUser(context.Background(), admin, uuid.New(), UpdateUserInput{Role: ptr(rbac.Role("root"))}); !errors.As(err, &ve) {
		t.Errorf("bad role err = %v", err)
	}
}

func TestUnverifiedDonorsOldestFirst(t *testing.T) {
	users := &fakeUsers{}
	svc := NewService(users, nil, nil, nil, zap.NewNop())

	page, err := svc.UnverifiedDonors(context.Background(), query.Page{Page: 1, Limit: 20})
	if err != nil || page.Users == nil {
		t.Fatalf("UnverifiedDonors = %+v, %v", page, err)
	}
	if !users.lastFilter.OnlyUnverified || users.lastFilter.Sort.Desc {
		t.Errorf("filter = %+v", users.lastFilter)
	}
}

func TestDashboardWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	var gotSince time.Time
	svc := NewService(nil, nil, nil, statsFunc(func(_ context.Context, since time.Time) (*repository.DashboardStats, error) {
		gotSince = since
		return &repository.DashboardStats{TotalUsers: 3}, nil
	}), zap.NewNop())
	svc.now = func() time.Time { return now }

	s, err := svc.Dashboard(context.Background())
	if err != nil || s.TotalUsers != 3 {
		t.Fatalf("Dashboard = %+v, %v", s, err)
	}
	if want := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC); !gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", gotSince, want)
	}
}
