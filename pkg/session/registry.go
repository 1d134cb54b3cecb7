package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
)

var (
	// ErrSessionMiss indicates the token does not resolve to a session
	ErrSessionMiss = errors.New("session not found")

	// ErrRefreshConsumed indicates the presented refresh token was
	// already used (or never existed). Rotation deletes the old refresh
	// key before issuing a new pair, so a second concurrent rotation
	// with the same token fails here instead of minting a duplicate
	// session.
	ErrRefreshConsumed = errors.New("refresh token already consumed")
)

// TokenPair is a freshly issued access/refresh token pair
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// Registry stores sessions in Redis. Both tokens of a pair map to the
// same identity under independent keys with independent TTLs.
type Registry struct {
	client     *redis.Client
	namespace  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	metrics    *observability.Metrics
}

// NewRegistry creates a session registry
func NewRegistry(client *redis.Client, namespace string, accessTTL, refreshTTL time.Duration, metrics *observability.Metrics) *Registry {
	return &Registry{
		client:     client,
		namespace:  namespace,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		metrics:    metrics,
	}
}

func (r *Registry) key(token string) string {
	return fmt.Sprintf("%s:session:%s", r.namespace, token)
}

// Create issues a new token pair for the identity. When rotating,
// previousRefreshToken must be the refresh token being consumed; the
// old key is deleted first, and a zero delete count means another
// request already consumed it (ErrRefreshConsumed).
func (r *Registry) Create(ctx context.Context, identity *rbac.Identity, previousRefreshToken string) (TokenPair, error) {
	if previousRefreshToken != "" {
		deleted, err := r.client.Del(ctx, r.key(previousRefreshToken)).Result()
		if err != nil {
			return TokenPair{}, fmt.Errorf("failed to consume refresh token: %w", err)
		}
		if deleted == 0 {
			return TokenPair{}, ErrRefreshConsumed
		}
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to marshal identity: %w", err)
	}

	pair := TokenPair{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		AccessTTL:    r.accessTTL,
		RefreshTTL:   r.refreshTTL,
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(pair.AccessToken), data, r.accessTTL)
	pipe.Set(ctx, r.key(pair.RefreshToken), data, r.refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return TokenPair{}, fmt.Errorf("failed to store session: %w", err)
	}

	if r.metrics != nil {
		if previousRefreshToken != "" {
			r.metrics.SessionsRotatedTotal.Inc()
		} else {
			r.metrics.SessionsCreatedTotal.Inc()
		}
	}
	return pair, nil
}

// Get resolves a token to its identity. Returns ErrSessionMiss when
// the token is unknown or expired.
func (r *Registry) Get(ctx context.Context, token string) (*rbac.Identity, error) {
	data, err := r.client.Get(ctx, r.key(token)).Result()
	if err == redis.Nil {
		return nil, ErrSessionMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var identity rbac.Identity
	if err := json.Unmarshal([]byte(data), &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &identity, nil
}

// Clear revokes the given tokens. Unknown tokens are ignored, so Clear
// is idempotent and safe to call with whatever cookies the client
// presented.
func (r *Registry) Clear(ctx context.Context, tokens ...string) error {
	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token != "" {
			keys = append(keys, r.key(token))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SessionsRevokedTotal.Inc()
	}
	return nil
}
