package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// GoCache is an unbounded in-memory cache with native per-item expiration
type GoCache struct {
	c          *gocache.Cache
	defaultTTL time.Duration
}

// NewGoCache creates a go-cache backed adapter
func NewGoCache(defaultTTL time.Duration) *GoCache {
	return &GoCache{
		c:          gocache.New(toGoCacheTTL(defaultTTL), sweepInterval),
		defaultTTL: defaultTTL,
	}
}

// Lookup retrieves an entry from the cache
func (g *GoCache) Lookup(key string) (Entry, bool) {
	v, ok := g.c.Get(key)
	if !ok {
		return Entry{}, false
	}
	entry, ok := v.(Entry)
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

// Store saves an entry in the cache
func (g *GoCache) Store(key string, ttl time.Duration, entry Entry) {
	lifetime, keep := expiry(ttl, g.defaultTTL)
	if !keep {
		g.c.Delete(key)
		return
	}
	g.c.Set(key, cloneEntry(entry), toGoCacheTTL(lifetime))
}

// Close drops all entries
func (g *GoCache) Close() {
	g.c.Flush()
}

// toGoCacheTTL maps a zero lifetime onto go-cache's no-expiry sentinel
func toGoCacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
