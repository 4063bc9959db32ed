package cache

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/matheus3301/nestsync/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Source says where a read-through result came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceStale   Source = "stale"
)

type entry struct {
	data   any
	stored time.Time
	ttl    time.Duration
}

// Cache is a short-TTL key/value store for idempotent reads. Expired entries
// are kept so they can be served when a refresh fails. Stored values are
// shared snapshots and must not be mutated by readers.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	metrics *metrics.Metrics
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if it is still fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.stored) >= e.ttl {
		return nil, false
	}
	return e.data, true
}

// Stale returns the last value stored for key regardless of age.
func (c *Cache) Stale(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Set stores data under key, overwriting any previous entry.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{data: data, stored: c.now(), ttl: ttl}
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetCacheEntries(n)
}

// Delete drops key entirely, including its stale fallback.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetCacheEntries(n)
}

// Expire keeps the value for key but marks it as no longer fresh.
func (c *Cache) Expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.ttl = 0
		c.entries[key] = e
	}
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key builds a deterministic cache key from an endpoint and its parameters.
func Key(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}
	v := make(url.Values, len(params))
	for k, p := range params {
		if p != "" {
			v.Set(k, p)
		}
	}
	// url.Values.Encode sorts by key.
	return endpoint + "?" + v.Encode()
}

// Loader fetches a fresh value and chooses how long it stays fresh.
type Loader[T any] func(ctx context.Context) (T, time.Duration, error)

// ReadThrough serves key from the cache while fresh, otherwise loads it.
// Concurrent loads of one key share a single call. On load failure the last
// stored value is returned if there is one; only when nothing was ever stored
// does the error reach the caller. force skips the freshness check and starts
// a new load instead of joining one already in flight.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, force bool, load Loader[T]) (T, Source, error) {
	var zero T
	if force {
		c.group.Forget(key)
	} else {
		if v, ok := c.Get(key); ok {
			if t, ok := v.(T); ok {
				c.metrics.CacheLookup(string(SourceCache))
				return t, SourceCache, nil
			}
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		v, ttl, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}

	if res.Err == nil {
		t, ok := res.Val.(T)
		if !ok {
			return zero, SourceNetwork, fmt.Errorf("cache %s: unexpected type %T", key, res.Val)
		}
		c.metrics.CacheLookup(string(SourceNetwork))
		return t, SourceNetwork, nil
	}

	if v, ok := c.Stale(key); ok {
		if t, ok := v.(T); ok {
			c.metrics.CacheLookup(string(SourceStale))
			return t, SourceStale, nil
		}
	}
	c.metrics.CacheLookup("miss")
	return zero, SourceNetwork, res.Err
}
