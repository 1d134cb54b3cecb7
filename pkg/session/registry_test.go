package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auth-apps/rbacd/pkg/rbac"
)

func setupRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRegistry(client, "test", 48*time.Hour, 168*time.Hour, nil), mr
}

func testIdentity() *rbac.Identity {
	return &rbac.Identity{
		ID:    "u-1",
		Email: "alice@example.com",
		Name:  "Alice",
		Role: &rbac.RoleSnapshot{
			ID:          "r-1",
			Name:        "Administrator",
			Code:        "admin",
			Permissions: []string{"users.list", "users.edit"},
		},
	}
}

func TestRegistry_Create(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	pair, err := registry.Create(ctx, testIdentity(), "")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	// Both tokens resolve to the same identity
	fromAccess, err := registry.Get(ctx, pair.AccessToken)
	require.NoError(t, err)
	fromRefresh, err := registry.Get(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, fromAccess, fromRefresh)
	assert.Equal(t, "alice@example.com", fromAccess.Email)
	assert.Equal(t, "admin", fromAccess.Role.Code)

	// Each key carries its own TTL
	accessTTL := mr.TTL("test:session:" + pair.AccessToken)
	refreshTTL := mr.TTL("test:session:" + pair.RefreshToken)
	assert.Equal(t, 48*time.Hour, accessTTL)
	assert.Equal(t, 168*time.Hour, refreshTTL)
}

func TestRegistry_Get_Miss(t *testing.T) {
	registry, _ := setupRegistry(t)

	_, err := registry.Get(context.Background(), "nonexistent-token")
	assert.ErrorIs(t, err, ErrSessionMiss)
}

func TestRegistry_Get_Expired(t *testing.T) {
	registry, mr := setupRegistry(t)
	ctx := context.Background()

	pair, err := registry.Create(ctx, testIdentity(), "")
	require.NoError(t, err)

	mr.FastForward(49 * time.Hour)

	_, err = registry.Get(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrSessionMiss)

	// Refresh token outlives the access token
	_, err = registry.Get(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRegistry_Rotation(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	original, err := registry.Create(ctx, testIdentity(), "")
	require.NoError(t, err)

	rotated, err := registry.Create(ctx, testIdentity(), original.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, original.RefreshToken, rotated.RefreshToken)

	// Old refresh token is consumed
	_, err = registry.Get(ctx, original.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionMiss)

	// New pair works
	identity, err := registry.Get(ctx, rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.ID)
}

func TestRegistry_Rotation_Consumed(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	original, err := registry.Create(ctx, testIdentity(), "")
	require.NoError(t, err)

	_, err = registry.Create(ctx, testIdentity(), original.RefreshToken)
	require.NoError(t, err)

	// Replaying the same refresh token fails; the delete already
	// happened so no second pair is minted
	_, err = registry.Create(ctx, testIdentity(), original.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshConsumed)
}

func TestRegistry_Clear(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	pair, err := registry.Create(ctx, testIdentity(), "")
	require.NoError(t, err)

	require.NoError(t, registry.Clear(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = registry.Get(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrSessionMiss)
	_, err = registry.Get(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionMiss)

	// Idempotent: clearing again, or with unknown/empty tokens, is fine
	assert.NoError(t, registry.Clear(ctx, pair.AccessToken, pair.RefreshToken))
	assert.NoError(t, registry.Clear(ctx, "", "unknown"))
	assert.NoError(t, registry.Clear(ctx))
}
