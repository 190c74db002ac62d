package revocation

import (
	"context"
	"time"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
)

// DefaultKeyPrefix namespaces revocation entries in Redis so they cannot
// collide with other platform keys in a shared database.
const DefaultKeyPrefix = "revocation:jti:"

// RedisStore is the subset of Redis operations the revocation list needs.
// It is satisfied by [*redis.Client] from pkg/clients/redis and by fakes
// in tests.
type RedisStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Exists(ctx context.Context, keys ...string) (int64, error)
}

// Redis is a revocation list shared across instances through Redis.
// Each revoked jti becomes a key with a TTL equal to the remaining token
// lifetime, so Redis expires entries exactly when the tokens they refer
// to stop being accepted anyway.
type Redis struct {
	store  RedisStore
	prefix string
}

// NewRedis creates a Redis-backed revocation list. An empty prefix uses
// [DefaultKeyPrefix].
func NewRedis(store RedisStore, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{
		store:  store,
		prefix: prefix,
	}
}

// Revoke marks jti as revoked until expiresAt. Revoking an already expired
// token is a no-op.
func (r *Redis) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.store.Set(ctx, r.prefix+jti, "1", ttl); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalStore,
			"revocation: failed to record revoked token")
	}
	return nil
}

// IsRevoked reports whether jti is marked revoked. Store errors are
// returned to the caller; they must not be treated as "not revoked".
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	count, err := r.store.Exists(ctx, r.prefix+jti)
	if err != nil {
		return false, sserr.Wrap(err, sserr.CodeInternalStore,
			"revocation: failed to consult revocation list")
	}
	return count > 0, nil
}
