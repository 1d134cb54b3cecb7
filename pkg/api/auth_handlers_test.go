package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auth-apps/rbacd/pkg/httputil"
	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
	"github.com/auth-apps/rbacd/pkg/session"
)

type testServer struct {
	server   *Server
	mock     sqlmock.Sqlmock
	mr       *miniredis.Miniredis
	registry *session.Registry
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := rbac.NewStore(db)
	cache := rbac.NewCache(client, store, "test", nil, logger)
	registry := session.NewRegistry(client, "test", time.Hour, 24*time.Hour, nil)

	return &testServer{
		server:   NewServer(store, cache, registry, logger, nil),
		mock:     mock,
		mr:       mr,
		registry: registry,
	}
}

// primeRoleCache writes a role snapshot directly into the cache
func (ts *testServer) primeRoleCache(t *testing.T, snapshot rbac.RoleSnapshot) {
	t.Helper()
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, ts.mr.Set("test:role:"+snapshot.ID, string(data)))
}

// loginAs creates a session directly and returns its access cookie
func (ts *testServer) loginAs(t *testing.T, identity *rbac.Identity) *http.Cookie {
	t.Helper()
	pair, err := ts.registry.Create(context.Background(), identity, "")
	require.NoError(t, err)
	return &http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken}
}

func adminIdentity() *rbac.Identity {
	return &rbac.Identity{
		ID:    "u-1",
		Email: "admin@example.com",
		Name:  "Administrator",
		Role: &rbac.RoleSnapshot{
			ID:   "r-1",
			Name: "Administrator",
			Code: "admin",
			Permissions: []string{
				rbac.PermUsersList, rbac.PermUsersEdit,
				rbac.PermRolesList, rbac.PermRolesEdit,
				rbac.PermPermissionsList, rbac.PermPermissionsEdit,
			},
		},
	}
}

func postJSON(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func userRow(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := rbac.HashPassword(password)
	require.NoError(t, err)
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role_id", "created_at", "updated_at"}).
		AddRow("u-1", "Administrator", "admin@example.com", hash, "r-1", now, now)
}

func TestLogin(t *testing.T) {
	ts := setupServer(t)
	ts.primeRoleCache(t, *adminIdentity().Role)

	ts.mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("admin@example.com").
		WillReturnRows(userRow(t, "hunter2hunter2"))

	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, postJSON(t, "/api/v1/users/login", loginRequest{
		Email:    "admin@example.com",
		Password: "hunter2hunter2",
	}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Flattened identity: no raw id, no embedded role object, no hash
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "admin@example.com", body["email"])
	assert.Equal(t, "Administrator", body["name"])
	assert.Equal(t, "r-1", body["role_id"])
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "role")
	assert.NotContains(t, body, "password_hash")

	// Both session cookies were issued and resolve in the registry
	cookies := rr.Result().Cookies()
	byName := make(map[string]string)
	for _, c := range cookies {
		byName[c.Name] = c.Value
	}
	require.Contains(t, byName, httputil.SessionCookieName)
	require.Contains(t, byName, httputil.RefreshCookieName)

	got, err := ts.registry.Get(context.Background(), byName[httputil.SessionCookieName])
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", got.Email)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := setupServer(t)

	ts.mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("admin@example.com").
		WillReturnRows(userRow(t, "hunter2hunter2"))

	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, postJSON(t, "/api/v1/users/login", loginRequest{
		Email:    "admin@example.com",
		Password: "not-the-password",
	}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestLogin_UnknownEmail(t *testing.T) {
	ts := setupServer(t)

	ts.mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role_id", "created_at", "updated_at"}))

	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, postJSON(t, "/api/v1/users/login", loginRequest{
		Email:    "ghost@example.com",
		Password: "whatever",
	}))

	// Same response as a bad password; no user enumeration
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin_RoleNotCached(t *testing.T) {
	ts := setupServer(t)
	// Cache deliberately not primed

	ts.mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("admin@example.com").
		WillReturnRows(userRow(t, "hunter2hunter2"))

	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, postJSON(t, "/api/v1/users/login", loginRequest{
		Email:    "admin@example.com",
		Password: "hunter2hunter2",
	}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestLogin_MissingFields(t *testing.T) {
	ts := setupServer(t)

	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, postJSON(t, "/api/v1/users/login", loginRequest{Email: "admin@example.com"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMe(t *testing.T) {
	ts := setupServer(t)
	cookie := ts.loginAs(t, adminIdentity())

	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "admin@example.com", body["email"])
	assert.Equal(t, "r-1", body["role_id"])
	assert.NotContains(t, body, "id")
	assert.NotContains(t, body, "role")
}

func TestMe_Unauthenticated(t *testing.T) {
	ts := setupServer(t)

	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout(t *testing.T) {
	ts := setupServer(t)

	pair, err := ts.registry.Create(context.Background(), adminIdentity(), "")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/users/logout", nil)
	req.AddCookie(&http.Cookie{Name: httputil.SessionCookieName, Value: pair.AccessToken})
	req.AddCookie(&http.Cookie{Name: httputil.RefreshCookieName, Value: pair.RefreshToken})
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	// Sessions revoked server side
	_, err = ts.registry.Get(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, session.ErrSessionMiss)

	// Cookies expired client side
	for _, c := range rr.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
		assert.Empty(t, c.Value)
	}
}

func TestLogout_NoCookies(t *testing.T) {
	ts := setupServer(t)

	req := httptest.NewRequest("POST", "/api/v1/users/logout", nil)
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	// Logout with nothing to revoke still succeeds
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMyPermissions(t *testing.T) {
	ts := setupServer(t)

	// The caller's role grants a single code; the response is that
	// code list, not the full permission catalog.
	cookie := ts.loginAs(t, &rbac.Identity{
		ID:    "u-3",
		Email: "bob@example.com",
		Name:  "Bob",
		Role: &rbac.RoleSnapshot{
			ID:          "r-3",
			Name:        "Operator",
			Code:        "operator",
			Permissions: []string{rbac.PermUsersList},
		},
	})

	catalog := []rbac.Permission{
		{ID: "p-1", Name: "List users", Code: rbac.PermUsersList},
		{ID: "p-2", Name: "Edit users", Code: rbac.PermUsersEdit},
		{ID: "p-3", Name: "Edit roles", Code: rbac.PermRolesEdit},
	}
	data, err := json.Marshal(catalog)
	require.NoError(t, err)
	require.NoError(t, ts.mr.Set("test:permissions", string(data)))

	req := httptest.NewRequest("GET", "/api/v1/users/permissions", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var codes []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &codes))
	assert.Equal(t, []string{rbac.PermUsersList}, codes)
}

func TestMyPermissions_NoRole(t *testing.T) {
	ts := setupServer(t)
	cookie := ts.loginAs(t, &rbac.Identity{ID: "u-4", Email: "norole@example.com", Name: "No Role"})

	req := httptest.NewRequest("GET", "/api/v1/users/permissions", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	ts.server.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
