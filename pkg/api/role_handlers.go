package api

import (
	"errors"
	"net/http"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	roles, total, err := s.store.ListRoles(r.Context(), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, newPagedResponse(roles, page, total))
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Code, "code") {
		return
	}

	role := &rbac.Role{Name: req.Name, Code: req.Code}
	if err := s.store.CreateRole(r.Context(), role); err != nil {
		if errors.Is(err, rbac.ErrDuplicate) {
			httputil.WriteConflict(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteCreated(w, role)
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := s.store.GetRole(r.Context(), id)
	if errors.Is(err, rbac.ErrNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Code, "code") {
		return
	}

	role := &rbac.Role{ID: id, Name: req.Name, Code: req.Code}
	if err := s.store.UpdateRole(r.Context(), role); err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, rbac.ErrDuplicate):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.refreshCache(r)
	httputil.WriteSuccess(w, role)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteRole(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteNoContent(w)
}

func (s *Server) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.store.GetRole(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	codes, err := s.store.GetRolePermissions(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, codes)
}

func (s *Server) linkRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req linkPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PermissionID, "permission_id") {
		return
	}

	// Validate both sides of the link
	if _, err := s.store.GetRole(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if _, err := s.store.GetPermission(r.Context(), req.PermissionID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.store.LinkPermission(r.Context(), id, req.PermissionID); err != nil {
		if errors.Is(err, rbac.ErrDuplicate) {
			httputil.WriteConflict(w, "permission already linked")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteCreated(w, map[string]string{"role_id": id, "permission_id": req.PermissionID})
}

func (s *Server) unlinkRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathStringOrError(w, r, "permissionId")
	if !ok {
		return
	}

	if err := s.store.UnlinkPermission(r.Context(), id, permissionID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFoundError(w, "permission link not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.refreshCache(r)
	httputil.WriteNoContent(w)
}
