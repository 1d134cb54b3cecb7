package api

import (
	"errors"
	"net/http"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	perms, total, err := s.store.ListPermissions(r.Context(), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, newPagedResponse(perms, page, total))
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Code, "code") {
		return
	}

	perm := &rbac.Permission{Name: req.Name, Code: req.Code}
	if err := s.store.CreatePermission(r.Context(), perm); err != nil {
		if errors.Is(err, rbac.ErrDuplicate) {
			httputil.WriteConflict(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteCreated(w, perm)
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	perm, err := s.store.GetPermission(r.Context(), id)
	if errors.Is(err, rbac.ErrNotFound) {
		httputil.WriteNotFoundError(w, "permission not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, perm)
}

func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req permissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Code, "code") {
		return
	}

	perm := &rbac.Permission{ID: id, Name: req.Name, Code: req.Code}
	if err := s.store.UpdatePermission(r.Context(), perm); err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			httputil.WriteNotFoundError(w, "permission not found")
		case errors.Is(err, rbac.ErrDuplicate):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.refreshCache(r)
	httputil.WriteSuccess(w, perm)
}

func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.DeletePermission(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteNoContent(w)
}
