package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComplaintTransitions(t *testing.T) {
	tests := []struct {
		from, to ComplaintStatus
		want     bool
	}{
		{ComplaintPending, ComplaintInReview, true},
		{ComplaintPending, ComplaintDismissed, true},
		{ComplaintPending, ComplaintResolved, false},
		{ComplaintInReview, ComplaintResolved, true},
		{ComplaintInReview, ComplaintDismissed, true},
		{ComplaintInReview, ComplaintPending, false},
		{ComplaintResolved, ComplaintInReview, false},
		{ComplaintDismissed, ComplaintPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := map[string]int64{
		"500":    50000,
		"1":      100,
		"10.255": 1026,
		"99.994": 9999,
	}
	for in, want := range tests {
		if got := ToMinorUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestCampaignStatusRules(t *testing.T) {
	if !CampaignPending.AcceptsDonations() || !CampaignActive.AcceptsDonations() {
		t.Error("pending and active campaigns must accept donations")
	}
	if CampaignCompleted.AcceptsDonations() || CampaignRejected.AcceptsDonations() {
		t.Error("completed and rejected campaigns must not accept donations")
	}
	if CampaignPending.AdminSettable() || CampaignRejected.AdminSettable() {
		t.Error("pending and rejected are reached only through verification")
	}
}

func TestProgressPercent(t *testing.T) {
	c := Campaign{GoalAmount: decimal.NewFromInt(1000), CurrentAmount: decimal.NewFromInt(1050)}
	if got := c.ProgressPercent(); !got.Equal(decimal.NewFromInt(105)) {
		t.Errorf("ProgressPercent = %s, want 105", got)
	}
}
