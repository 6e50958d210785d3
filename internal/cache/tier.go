// Package cache implements the two-tier balance cache: a process-local tier
// in front of a shared Redis tier, composed behind one BalanceCache facade.
//
// Cached snapshots are advisory. Every balance mutation reads the
// authoritative wallet row under lock; the cache only accelerates reads and
// is invalidated, never updated, on writes.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in a tier.
var ErrCacheMiss = errors.New("cache miss")

// CacheTier is one storage level of the balance cache. Implementations must
// be safe for concurrent use.
type CacheTier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
