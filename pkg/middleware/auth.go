package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
	"github.com/auth-apps/rbacd/pkg/session"
)

type contextKey string

// identityKey holds the authenticated *rbac.Identity in the request context
const identityKey contextKey = "identity"

// GetIdentity returns the authenticated identity from the context, or
// nil when the request is anonymous.
func GetIdentity(ctx context.Context) *rbac.Identity {
	identity, _ := ctx.Value(identityKey).(*rbac.Identity)
	return identity
}

// WithIdentity stores an identity in the context (exported for tests
// and handlers that authenticate out of band).
func WithIdentity(ctx context.Context, identity *rbac.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Gate authenticates requests against the session registry. Require
// resolves the access cookie, falling back to refresh rotation when
// the access token is gone but a refresh token is still valid.
type Gate struct {
	sessions *session.Registry
	logger   *observability.Logger
}

// NewGate creates an authentication gate
func NewGate(sessions *session.Registry, logger *observability.Logger) *Gate {
	return &Gate{
		sessions: sessions,
		logger:   logger.WithComponent("auth-gate"),
	}
}

// Require rejects unauthenticated requests with 401. On a successful
// refresh rotation both cookies are overwritten with the new pair.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := httputil.ReadCookie(r, httputil.SessionCookieName)
		refreshToken := httputil.ReadCookie(r, httputil.RefreshCookieName)

		if accessToken == "" && refreshToken == "" {
			httputil.WriteUnauthorized(w, "Unauthorized")
			return
		}

		if accessToken != "" {
			identity, err := g.sessions.Get(r.Context(), accessToken)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}
			if !errors.Is(err, session.ErrSessionMiss) {
				g.logger.WithError(err).Error("Session lookup failed")
				httputil.WriteInternalError(w, err)
				return
			}
		}

		// Access token absent or expired; try refresh rotation
		if refreshToken == "" {
			httputil.WriteUnauthorized(w, "Invalid session")
			return
		}

		identity, err := g.sessions.Get(r.Context(), refreshToken)
		if errors.Is(err, session.ErrSessionMiss) {
			httputil.WriteUnauthorized(w, "Invalid session")
			return
		}
		if err != nil {
			g.logger.WithError(err).Error("Refresh lookup failed")
			httputil.WriteInternalError(w, err)
			return
		}

		pair, err := g.sessions.Create(r.Context(), identity, refreshToken)
		if errors.Is(err, session.ErrRefreshConsumed) {
			// Lost the rotation race to a concurrent request
			httputil.WriteUnauthorized(w, "Invalid session")
			return
		}
		if err != nil {
			g.logger.WithError(err).Error("Session rotation failed")
			httputil.WriteInternalError(w, err)
			return
		}

		httputil.SetSessionCookies(w, pair.AccessToken, pair.RefreshToken, pair.AccessTTL, pair.RefreshTTL)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// Optional attaches the identity when a valid access token is present
// and otherwise lets the request through anonymously. It never rotates.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := httputil.ReadCookie(r, httputil.SessionCookieName)
		if accessToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := g.sessions.Get(r.Context(), accessToken)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequirePermission rejects requests whose identity's role does not
// grant the given permission code. Must run inside Require.
func (g *Gate) RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				httputil.WriteUnauthorized(w, "Unauthorized")
				return
			}
			if identity.Role == nil || !identity.Role.HasPermission(code) {
				httputil.WriteForbidden(w, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
