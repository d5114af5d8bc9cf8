// Package cache provides a keyed time-to-live cache. One instance is created
// per resource class (search results, track metadata, images); entries expire
// lazily on read, there is no background eviction.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an entry stays fresh unless overridden.
const DefaultTTL = time.Hour

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is a TTL map safe for concurrent use. A read past the TTL behaves
// exactly like a miss; the caller re-fetches and Puts again, replacing the
// stale entry.
type Cache[K comparable, V any] struct {
	data  map[K]entry[V]
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache with the given TTL. A non-positive ttl falls back to
// DefaultTTL.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[K, V]{
		data: make(map[K]entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns the value for key if present and within TTL.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mutex.RLock()
	e, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists || c.now().Sub(e.insertedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = entry[V]{value: value, insertedAt: c.now()}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.data, key)
}

// Size returns the number of entries, including any not yet lazily expired.
func (c *Cache[K, V]) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}
