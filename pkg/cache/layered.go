package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-level cache: L1 in memory, L2 a shared
// Service such as Redis.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

// NewLayeredCache puts a bounded memory cache in front of l2.
func NewLayeredCache(l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:    l2,
		l1TTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) memoryTTL(expiration time.Duration) time.Duration {
	if expiration <= 0 || expiration > lc.l1TTL {
		return lc.l1TTL
	}
	return expiration
}

// Set writes through to L2 first, then L1.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, data, lc.memoryTTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if err := lc.l1.Get(ctx, key, &data); err == nil {
		return decode(data, dest)
	}

	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

// TryLock and Unlock only use L2; locks must be visible across processes.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close stops the L1 cleanup goroutine. L2 is owned by the caller.
func (lc *LayeredCache) Close() error {
	return lc.l1.Close()
}
