package rbac

import "time"

// User is a system account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"role_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups permissions under a stable code
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission is a single grantable capability, identified by code
// (e.g. "users.edit").
type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleSnapshot is the cached view of a role: identity plus the flat
// list of permission codes it grants. This is the shape stored under
// the role cache keys and embedded in session identities.
type RoleSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the snapshot grants the given code
func (r *RoleSnapshot) HasPermission(code string) bool {
	for _, p := range r.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// Identity is the authenticated principal stored in a session
type Identity struct {
	ID    string        `json:"id"`
	Email string        `json:"email"`
	Name  string        `json:"name"`
	Role  *RoleSnapshot `json:"role,omitempty"`
}

// Well-known permission codes
const (
	PermRolesList       = "roles.list"
	PermRolesEdit       = "roles.edit"
	PermUsersList       = "users.list"
	PermUsersEdit       = "users.edit"
	PermPermissionsList = "permissions.list"
	PermPermissionsEdit = "permissions.edit"
	PermDashboardAccess = "dashboard.access"
)

// DefaultPermissions returns the baseline permission catalog seeded at
// bootstrap.
func DefaultPermissions() []Permission {
	return []Permission{
		{Name: "List roles", Code: PermRolesList},
		{Name: "Edit roles", Code: PermRolesEdit},
		{Name: "List users", Code: PermUsersList},
		{Name: "Edit users", Code: PermUsersEdit},
		{Name: "List permissions", Code: PermPermissionsList},
		{Name: "Edit permissions", Code: PermPermissionsEdit},
		{Name: "Access dashboard", Code: PermDashboardAccess},
	}
}
