package rbac

import "fmt"

// Role 是封闭的角色枚举
type Role string

const (
	RoleDonor         Role = "donor"
	RoleCampaignOwner Role = "campaign_owner"
	RoleAdmin         Role = "admin"
)

// ParseRole 校验角色字符串
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleDonor, RoleCampaignOwner, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Permission 权限常量
type Permission string

const (
	PermissionDonate             Permission = "donation:create"
	PermissionComment            Permission = "comment:write"
	PermissionFileComplaint      Permission = "complaint:create"
	PermissionCreateCampaign     Permission = "campaign:create"
	PermissionNotifyDonors       Permission = "notification:campaign_update"
	PermissionModerateComments   Permission = "comment:moderate"
	PermissionManageUsers        Permission = "user:manage"
	PermissionManageCampaigns    Permission = "campaign:manage"
	PermissionManageComplaints   Permission = "complaint:manage"
	PermissionViewReports        Permission = "report:read"
	PermissionBroadcastMilestone Permission = "notification:milestone"
	PermissionReplayOutbox       Permission = "outbox:replay"
	PermissionTestEmail          Permission = "notification:test_email"
)

var basePermissions = []Permission{
	PermissionDonate,
	PermissionComment,
	PermissionFileComplaint,
}

// 角色权限映射
var rolePermissions = map[Role][]Permission{
	RoleDonor: basePermissions,
	RoleCampaignOwner: append(append([]Permission{}, basePermissions...),
		PermissionCreateCampaign,
		PermissionNotifyDonors,
	),
	RoleAdmin: append(append([]Permission{}, basePermissions...),
		PermissionCreateCampaign,
		PermissionNotifyDonors,
		PermissionModerateComments,
		PermissionManageUsers,
		PermissionManageCampaigns,
		PermissionManageComplaints,
		PermissionViewReports,
		PermissionBroadcastMilestone,
		PermissionReplayOutbox,
		PermissionTestEmail,
	),
}

// Can 检查角色是否有指定权限
func Can(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role Role, permission Permission) error {
	if !Can(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       Role
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
