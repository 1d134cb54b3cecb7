package api

import (
	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

// loginRequest is the body of POST /api/v1/users/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// createUserRequest is the body of POST /api/v1/users
type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

// updateUserRequest is the body of PUT /api/v1/users/{id}. Password is
// optional; an empty password leaves the stored hash untouched.
type updateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	RoleID   string `json:"role_id"`
}

// roleRequest is the body of POST /api/v1/roles and PUT /api/v1/roles/{id}
type roleRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// permissionRequest is the body of POST/PUT on /api/v1/permissions
type permissionRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// linkPermissionRequest is the body of POST /api/v1/roles/{id}/permissions
type linkPermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

// identityResponse is the identity shape returned by login and
// /users/me. The raw user id and the role object stay server side;
// clients get the flattened role_id.
type identityResponse struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	RoleID string `json:"role_id"`
}

func newIdentityResponse(identity *rbac.Identity) identityResponse {
	resp := identityResponse{Email: identity.Email, Name: identity.Name}
	if identity.Role != nil {
		resp.RoleID = identity.Role.ID
	}
	return resp
}

// pagedResponse wraps a list payload with pagination metadata
type pagedResponse struct {
	Data interface{} `json:"data"`
	httputil.PageMeta
}

func newPagedResponse(data interface{}, p httputil.Pagination, total int64) pagedResponse {
	return pagedResponse{Data: data, PageMeta: httputil.NewPageMeta(p, total)}
}
