// Package cache provides the query result cache: TTL'd entries,
// version-scoped keys for coarse invalidation, and single-flight
// population so concurrent misses for one key run the loader once.
//
// Invalidation model: callers compose keys through Key(scope, suffix),
// which embeds the scope's current version. Invalidate bumps the
// version, making every key minted under the old one unreachable; the
// stale entries then age out through TTL or the sweeper. This avoids
// scanning the cache for entries touching a relation on every write.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a TTL'd in-memory key-value cache. Safe for concurrent use.
//
// Expiry is lazy: an expired entry is dropped when next touched. With
// WithSweepInterval a background sweeper also evicts expired entries
// periodically, bounding memory for keys that are never read again.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	version map[string]uint64

	group singleflight.Group
	now   func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

type entry struct {
	val any
	// expires zero means the entry never expires.
	expires time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the cache's time source. Tests use this to drive
// expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithSweepInterval starts a background sweeper that evicts expired
// entries every interval. Callers that set this must Close the cache.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.sweepEvery = d
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		version: make(map[string]uint64),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the background sweeper, if any. Idempotent.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns the live value stored under key. An expired entry is
// dropped and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		c.Delete(key)
		return nil, false
	}
	return e.val, true
}

// Set stores val under key for ttl. A non-positive ttl stores the entry
// without expiry.
func (c *Cache) Set(key string, val any, ttl time.Duration) {
	e := entry{val: val}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// GetOrSet returns the cached value under key, or populates it with fn.
//
// Concurrent callers missing on the same key share one fn invocation
// and all receive its result. A failing fn caches nothing; every caller
// of the flight gets the error and the next miss retries.
func (c *Cache) GetOrSet(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// A previous flight may have populated the key while this
		// caller waited on the group lock.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Delete removes the entry under key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry. Scope versions are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired
// ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// VersionedKey composes a base key with an explicit version. Different
// versions of the same base key never collide.
func VersionedKey(key string, version uint64) string {
	return fmt.Sprintf("%s#%d", key, version)
}

// GetVersioned returns the live value stored under (key, version).
func (c *Cache) GetVersioned(key string, version uint64) (any, bool) {
	return c.Get(VersionedKey(key, version))
}

// SetVersioned stores val under (key, version) for ttl.
func (c *Cache) SetVersioned(key string, val any, ttl time.Duration, version uint64) {
	c.Set(VersionedKey(key, version), val, ttl)
}

// DeleteVersioned removes the entry under (key, version).
func (c *Cache) DeleteVersioned(key string, version uint64) {
	c.Delete(VersionedKey(key, version))
}

// Key composes a cache key under a scope's current version. Bumping the
// scope's version via Invalidate makes keys minted earlier unreachable.
func (c *Cache) Key(scope, suffix string) string {
	c.mu.RLock()
	v := c.version[scope]
	c.mu.RUnlock()
	return fmt.Sprintf("%s#%d:%s", scope, v, suffix)
}

// Version returns a scope's current version. Fresh scopes start at 0.
func (c *Cache) Version(scope string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version[scope]
}

// Invalidate bumps a scope's version. Entries keyed under the previous
// version remain until they expire or the sweeper evicts them, but no
// Key call will produce their keys again.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	c.version[scope]++
	c.mu.Unlock()
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(c.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
