package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sweepInterval bounds how often expired entries are purged
const sweepInterval = time.Minute

// cacheEntry represents a cached item with expiration
type cacheEntry struct {
	entry     Entry
	expiresAt time.Time // zero means no expiry
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-memory LRU cache with per-entry TTL support
type MemoryCache struct {
	cache      *lru.Cache[string, *cacheEntry]
	defaultTTL time.Duration
	mu         sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, defaultTTL time.Duration) (*MemoryCache, error) {
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache:      cache,
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}

	// Start background cleanup goroutine
	go mc.cleanupLoop()

	return mc, nil
}

// Lookup retrieves an entry from the cache
func (mc *MemoryCache) Lookup(key string) (Entry, bool) {
	mc.mu.RLock()
	cached, ok := mc.cache.Get(key)
	mc.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}

	// Check if entry has expired
	if cached.expired(time.Now()) {
		mc.mu.Lock()
		mc.cache.Remove(key)
		mc.mu.Unlock()
		return Entry{}, false
	}

	return cloneEntry(cached.entry), true
}

// Store saves an entry in the cache. An entry that expires immediately
// replaces nothing and drops any previous entry under the key.
func (mc *MemoryCache) Store(key string, ttl time.Duration, entry Entry) {
	lifetime, keep := expiry(ttl, mc.defaultTTL)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !keep {
		mc.cache.Remove(key)
		return
	}

	cached := &cacheEntry{entry: cloneEntry(entry)}
	if lifetime > 0 {
		cached.expiresAt = time.Now().Add(lifetime)
	}
	mc.cache.Add(key, cached)
}

// Len returns the number of entries, expired ones included
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.cache.Len()
}

// Close stops the cache cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.stopOnce.Do(func() { close(mc.stop) })
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stop:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	keys := mc.cache.Keys()

	for _, key := range keys {
		cached, ok := mc.cache.Peek(key)
		if ok && cached.expired(now) {
			mc.cache.Remove(key)
		}
	}
}
