package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

// MemoryCache is an in-process Cache. Expired entries are evicted lazily on
// access so the cache never owns a background goroutine.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]memoryItem
	maxSize int
	now     func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxSize bounds the number of entries.
func WithMaxSize(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items:   make(map[string]memoryItem),
		maxSize: 1000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evict(now)
	}
	c.items[key] = memoryItem{data: data, expireAt: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	item, ok := c.items[key]
	if ok && !c.now().Before(item.expireAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.data, dest)
}

// Len returns the number of stored entries, including not yet evicted expired ones.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evict drops expired entries, then the entry closest to expiry if still full.
func (c *MemoryCache) evict(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, item := range c.items {
		if !now.Before(item.expireAt) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || item.expireAt.Before(oldestAt) {
			oldestKey, oldestAt = k, item.expireAt
		}
	}
	if len(c.items) >= c.maxSize && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
