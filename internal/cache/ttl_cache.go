// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Layer is a cache level that keeps the time each value was stored, so values
// can move between levels without their age being reset.
type Layer[K comparable, V any] interface {
	Lookup(key K) (V, time.Time, bool)
	Store(key K, value V, at time.Time)
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache is a thread-safe cache with per-entry time-based expiration.
// Entries older than the TTL are treated as absent when read (lazy expiry);
// there is no background eviction. A TTL of zero disables caching: Set is a
// no-op and Get always misses.
type TTLCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
	ttl  time.Duration
	now  Clock
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

// New creates a new TTLCache with the given TTL duration. Negative TTLs are
// treated as zero.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TTLCache[K, V]{
		data: make(map[K]entry[V]),
		ttl:  ttl,
		now:  o.now,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *TTLCache[K, V]) Enabled() bool {
	return c.ttl > 0
}

// TTL returns the configured time-to-live.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a value from the cache.
// Returns the value and ok=true if the key exists and has not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	value, _, ok := c.Lookup(key)
	return value, ok
}

// Lookup is Get that also returns when the value was stored.
func (c *TTLCache[K, V]) Lookup(key K) (V, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	var zero V
	if !ok || !c.Enabled() {
		return zero, time.Time{}, false
	}
	if c.expired(e.storedAt) {
		c.mu.Lock()
		// only drop the entry we inspected; a concurrent Set may have replaced it
		if cur, ok := c.data[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return zero, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

// Set stores a value stamped with the current time, replacing any previous
// entry for the key.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.Store(key, value, c.now())
}

// Store stores a value with an explicit timestamp. Values that are already
// expired are not kept.
func (c *TTLCache[K, V]) Store(key K, value V, at time.Time) {
	if !c.Enabled() || c.expired(at) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, storedAt: at}
}

// Delete removes a key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len returns the number of items currently in the cache.
// This does not check expiration - it returns the count even if expired.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *TTLCache[K, V]) expired(storedAt time.Time) bool {
	return c.now().Sub(storedAt) > c.ttl
}
