package rbac

import (
	"errors"
	"testing"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleDonor, PermissionDonate, true},
		{RoleDonor, PermissionCreateCampaign, false},
		{RoleDonor, PermissionNotifyDonors, false},
		{RoleCampaignOwner, PermissionCreateCampaign, true},
		{RoleCampaignOwner, PermissionNotifyDonors, true},
		{RoleCampaignOwner, PermissionManageUsers, false},
		{RoleAdmin, PermissionManageComplaints, true},
		{RoleAdmin, PermissionDonate, true},
		{Role("root"), PermissionDonate, false},
	}

	for _, tt := range tests {
		if got := Can(tt.role, tt.perm); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestCheckPermissionError(t *testing.T) {
	err := CheckPermission(RoleDonor, PermissionManageUsers)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want *PermissionDeniedError", err)
	}
	if denied.Role != RoleDonor || denied.Permission != PermissionManageUsers {
		t.Errorf("denied = %+v", denied)
	}
	if err := CheckPermission(RoleAdmin, PermissionManageUsers); err != nil {
		t.Errorf("admin denied: %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"donor", "campaign_owner", "admin"} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q): %v", s, err)
		}
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Error("ParseRole accepted unknown role")
	}
}
