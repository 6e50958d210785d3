package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is the shared cache tier backed by Redis.
type RedisTier struct {
	client redis.Cmdable
}

// NewRedisTier creates a Redis-backed tier. The client may point at a single
// node or a cluster; only plain string commands are used.
func NewRedisTier(client redis.Cmdable) *RedisTier {
	return &RedisTier{client: client}
}

// Get returns the cached value or ErrCacheMiss.
func (rt *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rt.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	return data, nil
}

// Set stores a value with the given TTL.
func (rt *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rt.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys.
func (rt *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := rt.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}
