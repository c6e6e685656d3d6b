// Package cache is the engine's result cache: TTL entries checked lazily
// against an injected clock, one in-flight load per key, and retention of
// expired entries so callers can fall back to the last good value.
package cache

import (
	"context"
	"sync"
	"time"

	"techrank/internal/clock"
	"techrank/internal/telemetry"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Entry is an immutable cached value. Updates replace the whole entry.
type Entry[V any] struct {
	Key      string        `json:"key"`
	Value    V             `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// ExpiresAt returns the end of the entry's freshness.
func (e Entry[V]) ExpiresAt() time.Time { return e.StoredAt.Add(e.TTL) }

// Fresh reports whether the entry is still within its TTL at now.
func (e Entry[V]) Fresh(now time.Time) bool { return now.Before(e.ExpiresAt()) }

// Loader produces a value and the TTL to cache it for. A TTL <= 0 returns
// the value without caching it.
type Loader[V any] func(ctx context.Context) (V, time.Duration, error)

// Options configures a Cache.
type Options struct {
	// Name labels metrics and logs.
	Name string
	// StaleGrace is how long expired entries stay available to Stale.
	StaleGrace time.Duration
	// SoftLimit triggers a sweep of entries past their grace on write.
	SoftLimit int
	Clock     clock.Clock
	Metrics   *telemetry.Recorder
}

// Cache maps keys to entries. Safe for concurrent use.
type Cache[V any] struct {
	name       string
	staleGrace time.Duration
	softLimit  int
	clock      clock.Clock
	metrics    *telemetry.Recorder

	mu      sync.RWMutex
	entries map[string]*Entry[V]

	flights singleflight.Group
}

// New creates an empty cache.
func New[V any](opts Options) *Cache[V] {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.StaleGrace < 0 {
		opts.StaleGrace = 0
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = 1024
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	return &Cache[V]{
		name:       opts.Name,
		staleGrace: opts.StaleGrace,
		softLimit:  opts.SoftLimit,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		entries:    make(map[string]*Entry[V]),
	}
}

// Get returns the value for key if it is fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.fresh(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Lookup returns a copy of the fresh entry for key.
func (c *Cache[V]) Lookup(key string) (Entry[V], bool) {
	e, ok := c.fresh(key)
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Stale returns the entry for key whether fresh or expired, as long as it
// is within the stale grace window. It is the last-good fallback.
func (c *Cache[V]) Stale(key string) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.pastGrace(e, c.clock.Now()) {
		return Entry[V]{}, false
	}
	c.metrics.CacheLookup(c.name, "stale")
	return *e, true
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.clock.Now()
	e := &Entry[V]{Key: key, Value: value, StoredAt: now, TTL: ttl}

	c.mu.Lock()
	c.entries[key] = e
	if len(c.entries) > c.softLimit {
		c.sweepLocked(now)
	}
	c.mu.Unlock()

	log.Debug().Str("cache", c.name).Str("key", key).Dur("ttl", ttl).Msg("Added to cache")
}

// GetOrLoad returns the fresh value for key, or runs load once no matter
// how many callers ask for the same cold key concurrently. A waiter whose
// ctx ends returns early; the load itself runs to completion and is cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	if e, ok := c.fresh(key); ok {
		c.metrics.CacheLookup(c.name, "hit")
		return e.Value, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		// A flight that finished just before this one started may have
		// already filled the entry.
		if e, ok := c.fresh(key); ok {
			return e.Value, nil
		}
		c.metrics.CacheLookup(c.name, "miss")

		v, ttl, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry, including stale ones.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
	log.Info().Str("cache", c.name).Int("entries", n).Msg("Cache cleared")
}

// Len returns the number of retained entries, fresh or stale.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of every retained entry.
func (c *Cache[V]) Entries() []Entry[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}

// Restore inserts entries as they were stored, keeping their original
// timestamps. Existing entries that are newer win.
func (c *Cache[V]) Restore(entries []Entry[V]) int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for i := range entries {
		e := entries[i]
		if e.Key == "" || c.pastGrace(&e, now) {
			continue
		}
		if cur, ok := c.entries[e.Key]; ok && cur.StoredAt.After(e.StoredAt) {
			continue
		}
		c.entries[e.Key] = &e
		restored++
	}
	return restored
}

func (c *Cache[V]) fresh(key string) (*Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !e.Fresh(c.clock.Now()) {
		return nil, false
	}
	return e, true
}

func (c *Cache[V]) pastGrace(e *Entry[V], now time.Time) bool {
	return now.After(e.ExpiresAt().Add(c.staleGrace))
}

func (c *Cache[V]) sweepLocked(now time.Time) {
	removed := 0
	for k, e := range c.entries {
		if c.pastGrace(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Str("cache", c.name).Int("removed", removed).Msg("Swept expired cache entries")
	}
}
