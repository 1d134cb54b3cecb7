package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
	"github.com/auth-apps/rbacd/pkg/session"
)

func setupGate(t *testing.T) (*Gate, *session.Registry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := session.NewRegistry(client, "test", time.Hour, 24*time.Hour, nil)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewGate(registry, logger), registry, mr
}

func gateIdentity() *rbac.Identity {
	return &rbac.Identity{
		ID:    "u-1",
		Email: "alice@example.com",
		Name:  "Alice",
		Role: &rbac.RoleSnapshot{
			ID:          "r-1",
			Name:        "Administrator",
			Code:        "admin",
			Permissions: []string{"users.list"},
		},
	}
}

// echoIdentity responds 200 and records the identity the gate attached
func echoIdentity(captured **rbac.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_Require_NoCookies(t *testing.T) {
	gate, _, _ := setupGate(t)

	req := httptest.NewRequest("GET", "/protected", nil)
	rr := httptest.NewRecorder()

	var captured *rbac.Identity
	gate.Require(echoIdentity(&captured)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Nil(t, captured)
}

func TestGate_Require_ValidAccessToken(t *testing.T) {
	gate, registry, _ := setupGate(t)

	pair, err := registry.Create(context.Background(), gateIdentity(), "")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken})
	rr := httptest.NewRecorder()

	var captured *rbac.Identity
	gate.Require(echoIdentity(&captured)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "u-1", captured.ID)

	// No rotation happened, so no cookies were rewritten
	assert.Empty(t, rr.Result().Cookies())
}

func TestGate_Require_RefreshRotation(t *testing.T) {
	gate, registry, mr := setupGate(t)

	pair, err := registry.Create(context.Background(), gateIdentity(), "")
	require.NoError(t, err)

	// Access token expires, refresh token survives
	mr.FastForward(2 * time.Hour)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken})
	req.AddCookie(&http.Cookie{Name: httputil.RefreshCookieName, Value: pair.RefreshToken})
	rr := httptest.NewRecorder()

	var captured *rbac.Identity
	gate.Require(echoIdentity(&captured)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "alice@example.com", captured.Email)

	// Both cookies were overwritten with a fresh pair
	cookies := rr.Result().Cookies()
	byName := make(map[string]*http.Cookie)
	for _, c := range cookies {
		byName[c.Name] = c
	}
	require.Contains(t, byName, httputil.SessionCookieName)
	require.Contains(t, byName, httputil.RefreshCookieName)
	assert.NotEqual(t, pair.AccessToken, byName[httputil.SessionCookieName].Value)
	assert.NotEqual(t, pair.RefreshToken, byName[httputil.RefreshCookieName].Value)

	// Old refresh token was consumed by the rotation
	_, err = registry.Get(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, session.ErrSessionMiss)
}

func TestGate_Require_InvalidSession(t *testing.T) {
	gate, _, _ := setupGate(t)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: "stale"})
	req.AddCookie(&http.Cookie{Name: httputil.RefreshCookieName, Value: "also-stale"})
	rr := httptest.NewRecorder()

	var captured *rbac.Identity
	gate.Require(echoIdentity(&captured)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Nil(t, captured)
}

func TestGate_Optional(t *testing.T) {
	gate, registry, _ := setupGate(t)

	t.Run("anonymous passes through", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/page", nil)
		rr := httptest.NewRecorder()

		var captured *rbac.Identity
		gate.Optional(echoIdentity(&captured)).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Nil(t, captured)
	})

	t.Run("valid access token attaches identity", func(t *testing.T) {
		pair, err := registry.Create(context.Background(), gateIdentity(), "")
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/page", nil)
		req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken})
		rr := httptest.NewRecorder()

		var captured *rbac.Identity
		gate.Optional(echoIdentity(&captured)).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, captured)
		assert.Equal(t, "u-1", captured.ID)
	})
}

func TestGate_RequirePermission(t *testing.T) {
	gate, registry, _ := setupGate(t)

	pair, err := registry.Create(context.Background(), gateIdentity(), "")
	require.NoError(t, err)

	newRequest := func() *http.Request {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken})
		return req
	}

	t.Run("granted", func(t *testing.T) {
		rr := httptest.NewRecorder()
		var captured *rbac.Identity
		gate.Require(gate.RequirePermission("users.list")(echoIdentity(&captured))).ServeHTTP(rr, newRequest())
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("denied", func(t *testing.T) {
		rr := httptest.NewRecorder()
		var captured *rbac.Identity
		gate.Require(gate.RequirePermission("roles.edit")(echoIdentity(&captured))).ServeHTTP(rr, newRequest())
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Nil(t, captured)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		var captured *rbac.Identity
		gate.RequirePermission("users.list")(echoIdentity(&captured)).ServeHTTP(rr, httptest.NewRequest("GET", "/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
