package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/auth-apps/rbacd/pkg/observability"
)

// Cache is the Redis-backed read path for authorization data. Role
// snapshots and the permission catalog are written by Refresh* and
// read on every authenticated request. A cache miss on a role is a
// hard failure (ErrRoleNotCached); reads never fall through to the
// database.
type Cache struct {
	client    *redis.Client
	store     *Store
	namespace string
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewCache creates an RBAC cache over the given Redis client and store
func NewCache(client *redis.Client, store *Store, namespace string, metrics *observability.Metrics, logger *observability.Logger) *Cache {
	return &Cache{
		client:    client,
		store:     store,
		namespace: namespace,
		metrics:   metrics,
		logger:    logger.WithComponent("rbac-cache"),
	}
}

func (c *Cache) roleKey(roleID string) string {
	return fmt.Sprintf("%s:role:%s", c.namespace, roleID)
}

func (c *Cache) permissionsKey() string {
	return fmt.Sprintf("%s:permissions", c.namespace)
}

// GetRole returns the cached snapshot for a role. Returns
// ErrRoleNotCached when the key is absent.
func (c *Cache) GetRole(ctx context.Context, roleID string) (*RoleSnapshot, error) {
	data, err := c.client.Get(ctx, c.roleKey(roleID)).Result()
	if err == redis.Nil {
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, fmt.Errorf("role %s: %w", roleID, ErrRoleNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot RoleSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		// Corrupt entry; drop it so the next refresh rewrites it
		c.client.Del(ctx, c.roleKey(roleID))
		return nil, fmt.Errorf("failed to unmarshal role snapshot: %w", err)
	}

	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &snapshot, nil
}

// GetPermissions returns the cached permission catalog. Returns
// ErrRoleNotCached when the key is absent.
func (c *Cache) GetPermissions(ctx context.Context) ([]Permission, error) {
	data, err := c.client.Get(ctx, c.permissionsKey()).Result()
	if err == redis.Nil {
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, fmt.Errorf("permission catalog: %w", ErrRoleNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var perms []Permission
	if err := json.Unmarshal([]byte(data), &perms); err != nil {
		c.client.Del(ctx, c.permissionsKey())
		return nil, fmt.Errorf("failed to unmarshal permission catalog: %w", err)
	}

	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return perms, nil
}

// RefreshRoles rebuilds every role snapshot from the database and
// removes cached snapshots for roles that no longer exist.
func (c *Cache) RefreshRoles(ctx context.Context) error {
	snapshots, err := c.store.LoadRoleSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load role snapshots: %w", err)
	}

	live := make(map[string]bool, len(snapshots))
	pipe := c.client.Pipeline()
	for _, snapshot := range snapshots {
		live[c.roleKey(snapshot.ID)] = true
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal role snapshot: %w", err)
		}
		pipe.Set(ctx, c.roleKey(snapshot.ID), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write role snapshots: %w", err)
	}

	// Drop snapshots for deleted roles
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("%s:role:*", c.namespace), 100).Iterator()
	for iter.Next(ctx) {
		if !live[iter.Val()] {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete stale role key %s: %w", iter.Val(), err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("role key scan failed: %w", err)
	}

	c.logger.WithField("roles", len(snapshots)).Debug("Refreshed role cache")
	return nil
}

// RefreshPermissions rebuilds the cached permission catalog from the
// database.
func (c *Cache) RefreshPermissions(ctx context.Context) error {
	perms, err := c.store.GetAllPermissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load permissions: %w", err)
	}

	data, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to marshal permission catalog: %w", err)
	}

	if err := c.client.Set(ctx, c.permissionsKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write permission catalog: %w", err)
	}

	c.logger.WithField("permissions", len(perms)).Debug("Refreshed permission catalog")
	return nil
}

// RefreshAll rebuilds the role snapshots and permission catalog in
// parallel. The trigger label is recorded in metrics ("startup",
// "mutation", "periodic").
func (c *Cache) RefreshAll(ctx context.Context, trigger string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RefreshRoles(gctx) })
	g.Go(func() error { return c.RefreshPermissions(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.CacheRefreshesTotal.WithLabelValues(trigger).Inc()
	}
	return nil
}
