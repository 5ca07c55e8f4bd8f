// Package cache memoises derived read models (leaderboards, analytics
// snapshots and trend series) with a TTL, keyed by kind, domain and query.
package cache

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/pkg/metrics"
)

// Defaults.
const (
	DefaultTTL             = 30 * time.Second
	DefaultCleanupInterval = time.Minute
)

const (
	sep       = "|"
	anyDomain = "*"
)

// Key identifies one cached read model. An empty Domain stands for all
// domains. Query carries the remaining request parameters.
type Key struct {
	Kind   string
	Domain model.Domain
	Query  string
}

func (k Key) String() string {
	d := string(k.Domain)
	if d == "" {
		d = anyDomain
	}
	return k.Kind + sep + d + sep + k.Query
}

// Generation is a snapshot of the invalidation counters covering one domain.
// Take it with Generation before reading the store and pass it to Set.
type Generation uint64

// Cache wraps go-cache. A non-positive TTL disables it.
type Cache struct {
	items   *gocache.Cache
	ttl     time.Duration
	cleanup time.Duration

	mu sync.Mutex

	// all-domains entries follow all; per-domain entries follow flushes
	// plus their own counter.
	flushes uint64
	all     uint64
	domains map[model.Domain]uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCleanupInterval sets how often expired entries are purged.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.cleanup = d
		}
	}
}

// New creates a cache.
func New(opts ...Option) *Cache {
	c := &Cache{ttl: DefaultTTL, cleanup: DefaultCleanupInterval, domains: make(map[model.Domain]uint64)}
	for _, opt := range opts {
		opt(c)
	}
	if c.Enabled() {
		c.items = gocache.New(c.ttl, c.cleanup)
	}
	return c
}

// Enabled reports whether entries are kept at all.
func (c *Cache) Enabled() bool { return c != nil && c.ttl > 0 }

// Get returns the entry for k.
func (c *Cache) Get(k Key) (any, bool) {
	if !c.Enabled() {
		return nil, false
	}
	v, ok := c.items.Get(k.String())
	if ok {
		metrics.RecordCacheHit(k.Kind)
	} else {
		metrics.RecordCacheMiss(k.Kind)
	}
	return v, ok
}

// Generation returns the current generation for entries over domain. An
// empty domain means the all-domains entries.
func (c *Cache) Generation(domain model.Domain) Generation {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(domain)
}

func (c *Cache) generation(domain model.Domain) Generation {
	if domain == "" {
		return Generation(c.all)
	}
	return Generation(c.flushes + c.domains[domain])
}

// Set stores v under k with the default TTL, unless an invalidation covering
// k.Domain happened after gen was taken. It reports whether v was stored.
func (c *Cache) Set(k Key, v any, gen Generation) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(k.Domain) != gen {
		metrics.RecordCacheStaleSkip(k.Kind)
		return false
	}
	c.items.SetDefault(k.String(), v)
	return true
}

// InvalidateDomain drops every entry computed over domain, plus every
// all-domains entry. An empty domain flushes everything.
func (c *Cache) InvalidateDomain(domain model.Domain) {
	if !c.Enabled() {
		return
	}
	if domain == "" {
		c.Flush()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all++
	c.domains[domain]++
	for key := range c.items.Items() {
		parts := strings.SplitN(key, sep, 3)
		if len(parts) < 2 {
			continue
		}
		if parts[1] == string(domain) || parts[1] == anyDomain {
			c.items.Delete(key)
		}
	}
}

// Flush drops everything.
func (c *Cache) Flush() {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	c.all++
	c.items.Flush()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	return c.items.ItemCount()
}

// Lookup is a typed Get.
func Lookup[T any](c *Cache, k Key) (T, bool) {
	var zero T
	v, ok := c.Get(k)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
