package cache

import (
	"sync"
	"time"
)

// Options configures a Cache. Zero TTL keeps items until evicted; zero
// MaxItems means unbounded.
type Options struct {
	TTL             time.Duration
	MaxItems        int
	CleanupInterval time.Duration
}

type item[V any] struct {
	value     V
	expiresAt time.Time
	storedAt  time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// Cache is a thread-safe in-memory cache with expiration. When full, the
// oldest stored item is evicted.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	opts  Options
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache and starts the cleanup loop if an interval is set.
// Call Close to stop it.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]item[V]),
		opts:  opts,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

// SetWithTTL stores value under key with a specific TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	now := c.now()
	it := item[V]{value: value, storedAt: now}
	if ttl > 0 {
		it.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictOldestLocked()
	}
	c.items[key] = it
}

// Get returns the unexpired value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Flush removes all items.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
}

// Len returns the number of items, including expired ones not yet cleaned.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup loop.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, it := range c.items {
		if oldestKey == "" || it.storedAt.Before(oldest) {
			oldestKey, oldest = k, it.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
