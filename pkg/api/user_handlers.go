package api

import (
	"errors"
	"net/http"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	users, total, err := s.store.ListUsers(r.Context(), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, newPagedResponse(users, page, total))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") ||
		!httputil.RequireNonEmpty(w, req.Email, "email") ||
		!httputil.RequireNonEmpty(w, req.Password, "password") ||
		!httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
		return
	}

	// Role must exist before we accept the user
	if _, err := s.store.GetRole(r.Context(), req.RoleID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteBadRequest(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	hash, err := rbac.HashPassword(req.Password)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user := &rbac.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		RoleID:       req.RoleID,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, rbac.ErrDuplicate) {
			httputil.WriteConflict(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if errors.Is(err, rbac.ErrNotFound) {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") ||
		!httputil.RequireNonEmpty(w, req.Email, "email") ||
		!httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
		return
	}

	if _, err := s.store.GetRole(r.Context(), req.RoleID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteBadRequest(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	user := &rbac.User{
		ID:     id,
		Name:   req.Name,
		Email:  req.Email,
		RoleID: req.RoleID,
	}
	if req.Password != "" {
		hash, err := rbac.HashPassword(req.Password)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		user.PasswordHash = hash
	}

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, rbac.ErrDuplicate):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
