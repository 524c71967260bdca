package bounded

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a thread-safe map with a hard entry cap and an optional TTL.
//
// Eviction is least-recently-inserted: overwriting a key moves it to the
// newest position, reads do not. Expired entries are dropped lazily on Get
// and eagerly on Prune.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	entries    *orderedmap.OrderedMap[K, cacheEntry[V]]
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// CacheOption customises a Cache at construction.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now as the cache's time source.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) {
		o.now = now
	}
}

// NewCache creates a cache holding at most maxEntries values. A ttl of zero
// disables expiry.
func NewCache[K comparable, V any](maxEntries int, ttl time.Duration, opts ...CacheOption) *Cache[K, V] {
	o := cacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[K, V]{
		entries:    orderedmap.New[K, cacheEntry[V]](),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        o.now,
	}
}

// Set stores value under key and evicts the oldest entries beyond the cap.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Delete(key)
	c.entries.Set(key, cacheEntry[V]{value: value, storedAt: c.now()})

	for c.entries.Len() > c.maxEntries {
		oldest := c.entries.Oldest()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
	}
}

// Get returns the value for key if it is present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	if c.expired(entry) {
		c.entries.Delete(key)
		return zero, false
	}
	return entry.value, true
}

// Has reports whether key is present and not expired.
func (c *Cache[K, V]) Has(key K) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(key)
}

// Prune removes every expired entry and returns how many were dropped.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []K
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if c.expired(pair.Value) {
			stale = append(stale, pair.Key)
		}
	}
	for _, key := range stale {
		c.entries.Delete(key)
	}
	return len(stale)
}

// Len includes entries that have expired but were not yet pruned.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys lists live keys oldest first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if !c.expired(pair.Value) {
			keys = append(keys, pair.Key)
		}
	}
	return keys
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[K, cacheEntry[V]]()
}

func (c *Cache[K, V]) expired(e cacheEntry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}
