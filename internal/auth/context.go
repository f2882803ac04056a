package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is an application role assigned in the Azure AD app registration
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePlanner    Role = "planner"
	RoleViewer     Role = "viewer"
	RoleAPIService Role = "api_service"
)

// Permission guards a group of endpoints
type Permission string

const (
	PermissionReportsView     Permission = "reports:view"
	PermissionOrdersWrite     Permission = "orders:write"
	PermissionInventoryWrite  Permission = "inventory:write"
	PermissionMasterDataWrite Permission = "masterdata:write"
	PermissionPurchasingWrite Permission = "purchasing:write"
	PermissionArchivesView    Permission = "archives:view"
	PermissionArchivesDelete  Permission = "archives:delete"
)

var rolePermissions = map[Role][]Permission{
	RolePlanner: {
		PermissionReportsView,
		PermissionOrdersWrite,
		PermissionInventoryWrite,
		PermissionPurchasingWrite,
		PermissionArchivesView,
	},
	RoleViewer: {
		PermissionReportsView,
	},
	RoleAPIService: {
		PermissionReportsView,
		PermissionOrdersWrite,
		PermissionInventoryWrite,
		PermissionMasterDataWrite,
		PermissionPurchasingWrite,
		PermissionArchivesView,
	},
}

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	Roles       []Role
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// Actor names whoever made the request, for archive records and logs
func Actor(ctx context.Context) string {
	user, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	if user.Email != "" {
		return user.Email
	}
	return user.DisplayName
}

// HasRole checks if user has a specific role
func (u *UserContext) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if user has any of the specified roles
func (u *UserContext) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the admin role
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// HasPermission checks the default permissions of the user's roles. Admins
// hold every permission.
func (u *UserContext) HasPermission(permission Permission) bool {
	if u.IsAdmin() {
		return true
	}
	for _, role := range u.Roles {
		for _, p := range rolePermissions[role] {
			if p == permission {
				return true
			}
		}
	}
	return false
}

// RolesAsStrings returns roles as a slice of strings
func (u *UserContext) RolesAsStrings() []string {
	result := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		result[i] = string(role)
	}
	return result
}

// AllPermissions lists every permission in a stable order
func AllPermissions() []Permission {
	return []Permission{
		PermissionReportsView,
		PermissionOrdersWrite,
		PermissionInventoryWrite,
		PermissionMasterDataWrite,
		PermissionPurchasingWrite,
		PermissionArchivesView,
		PermissionArchivesDelete,
	}
}

// Permissions returns the effective permissions of the user
func (u *UserContext) Permissions() []Permission {
	var out []Permission
	for _, p := range AllPermissions() {
		if u.HasPermission(p) {
			out = append(out, p)
		}
	}
	return out
}
