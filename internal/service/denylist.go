package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist blocks individual access tokens (by jti) before their natural
// expiry. It is optional: when absent, access token verification stays a
// pure signature check with no store lookup.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

const denylistKeyPrefix = "access:denylist:"

// RedisDenylist implements Denylist with per-jti keys expiring alongside the
// token, so the set never needs explicit cleanup.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist wraps a redis client.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

// Add records a jti until its ttl elapses.
func (d *RedisDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denylistKeyPrefix+jti, "1", ttl).Err()
}

// Contains reports whether the jti has been denylisted.
func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
