package api

import (
	"errors"
	"net/http"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/middleware"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

// login verifies credentials, resolves the role snapshot from the
// cache and issues a fresh session pair as cookies.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") || !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, rbac.ErrNotFound) {
		// Same response as a bad password; no user enumeration
		s.recordLogin("failure")
		httputil.WriteError(w, http.StatusUnauthorized, rbac.ErrInvalidCredentials)
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	ok, err := rbac.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.WithError(err).Error("Password verification failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !ok {
		s.recordLogin("failure")
		httputil.WriteError(w, http.StatusUnauthorized, rbac.ErrInvalidCredentials)
		return
	}

	// The cache is the only role read path. A miss here means the
	// cache was never primed, which is a deployment fault, not a
	// client error.
	role, err := s.cache.GetRole(r.Context(), user.RoleID)
	if err != nil {
		s.logger.WithError(err).WithField("role_id", user.RoleID).Error("Role resolution failed during login")
		httputil.WriteInternalError(w, err)
		return
	}

	identity := &rbac.Identity{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  role,
	}

	pair, err := s.sessions.Create(r.Context(), identity, "")
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.SetSessionCookies(w, pair.AccessToken, pair.RefreshToken, pair.AccessTTL, pair.RefreshTTL)
	s.recordLogin("success")
	httputil.WriteSuccess(w, newIdentityResponse(identity))
}

// logout revokes whatever session cookies the client presented and
// clears them. Safe to call with no cookies at all.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	accessToken := httputil.ReadCookie(r, httputil.SessionCookieName)
	refreshToken := httputil.ReadCookie(r, httputil.RefreshCookieName)

	if err := s.sessions.Clear(r.Context(), accessToken, refreshToken); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.ClearSessionCookies(w)
	httputil.WriteSuccess(w, map[string]bool{"success": true})
}

// me returns the authenticated identity
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}
	httputil.WriteSuccess(w, newIdentityResponse(identity))
}

// myPermissions returns the caller's permission code list. Users
// without a role get an empty list, not an error.
func (s *Server) myPermissions(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}
	codes := []string{}
	if identity.Role != nil {
		codes = identity.Role.Permissions
	}
	httputil.WriteSuccess(w, codes)
}

func (s *Server) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
