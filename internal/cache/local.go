package cache

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalTier is the process-local cache tier: a TTL map with a background
// janitor sweeping expired entries.
type LocalTier struct {
	mu          sync.RWMutex
	data        map[string]localEntry
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewLocalTier creates a local tier and starts its cleanup loop.
func NewLocalTier(cleanupInterval time.Duration) *LocalTier {
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Second
	}

	lt := &LocalTier{
		data:        make(map[string]localEntry),
		stopCleanup: make(chan struct{}),
	}

	ticker := time.NewTicker(cleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				lt.sweep()
			case <-lt.stopCleanup:
				return
			}
		}
	}()

	return lt
}

// Get returns the cached value or ErrCacheMiss. Expired entries are removed
// on access rather than waiting for the janitor.
func (lt *LocalTier) Get(ctx context.Context, key string) ([]byte, error) {
	lt.mu.RLock()
	entry, exists := lt.data[key]
	lt.mu.RUnlock()

	if !exists {
		return nil, ErrCacheMiss
	}

	if time.Now().After(entry.expiresAt) {
		lt.mu.Lock()
		delete(lt.data, key)
		lt.mu.Unlock()
		return nil, ErrCacheMiss
	}

	return entry.value, nil
}

// Set stores a value until its TTL elapses.
func (lt *LocalTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	lt.mu.Lock()
	lt.data[key] = localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	lt.mu.Unlock()
	return nil
}

// Delete removes the given keys.
func (lt *LocalTier) Delete(ctx context.Context, keys ...string) error {
	lt.mu.Lock()
	for _, key := range keys {
		delete(lt.data, key)
	}
	lt.mu.Unlock()
	return nil
}

// Close stops the cleanup loop.
func (lt *LocalTier) Close() {
	lt.stopOnce.Do(func() { close(lt.stopCleanup) })
}

func (lt *LocalTier) sweep() {
	now := time.Now()
	lt.mu.Lock()
	for key, entry := range lt.data {
		if now.After(entry.expiresAt) {
			delete(lt.data, key)
		}
	}
	lt.mu.Unlock()
}
