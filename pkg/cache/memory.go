package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache implements Service in process with LRU eviction. Values are
// held as encoded JSON so readers never share memory with writers.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	stop       chan struct{}
	once       sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		stop:       make(chan struct{}),
	}
	go mc.cleanupExpired(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, data, time.Now().Add(expiration))
	return nil
}

func (mc *MemoryCache) put(key string, data []byte, expireAt time.Time) {
	if el, ok := mc.items[key]; ok {
		item := el.Value.(*memoryItem)
		item.data = data
		item.expireAt = expireAt
		mc.order.MoveToFront(el)
		return
	}
	for mc.maxSize > 0 && len(mc.items) >= mc.maxSize {
		mc.removeElement(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memoryItem{key: key, data: data, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if item.expired(time.Now()) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	data := item.data
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

// DeleteByPattern removes keys matching a glob pattern ("jobs:*").
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, el := range mc.items {
		if ok, _ := path.Match(pattern, key); ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok && !el.Value.(*memoryItem).expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.items[key]; ok && !el.Value.(*memoryItem).expired(time.Now()) {
		return false, nil
	}
	mc.put(key, []byte("locked"), time.Now().Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len reports the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stop:
			return
		case now := <-ticker.C:
			mc.mu.Lock()
			for _, el := range mc.items {
				if el.Value.(*memoryItem).expired(now) {
					mc.removeElement(el)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}
