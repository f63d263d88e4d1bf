package cache

import (
	"encoding/json"
	"time"

	"rpcclient/internal/jsonrpc"
)

// DefaultTTL asks the adapter to apply its configured default expiration
const DefaultTTL time.Duration = -1

// NoExpiration keeps an entry until it is evicted. A ttl of zero is not
// the same thing: such an entry expires immediately and is never served.
const NoExpiration time.Duration = -2

// Entry is a finalized call outcome as kept in the cache
type Entry struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Adapter defines the interface for call result caching
// This interface allows for different implementations (in-memory, Redis, etc.)
type Adapter interface {
	// Lookup retrieves a cached entry by fingerprint
	// Returns the entry and true if found, zero value and false otherwise
	Lookup(key string) (Entry, bool)

	// Store saves an entry under the fingerprint. DefaultTTL applies the
	// adapter default, NoExpiration keeps the entry until evicted, zero
	// expires it immediately and a positive ttl expires it after that long.
	Store(key string, ttl time.Duration, entry Entry)

	// Close releases any resources held by the cache
	Close()
}

// EncodeEntry serializes an entry for byte-oriented backends
func EncodeEntry(entry Entry) ([]byte, error) {
	return json.Marshal(entry)
}

// DecodeEntry deserializes an entry written by EncodeEntry
func DecodeEntry(data []byte) (Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return entry, err
}

// expiry resolves a requested ttl into the lifetime to apply, where zero
// means no expiry. It returns false when the entry must not be kept. An
// adapter default of zero or less keeps entries until evicted.
func expiry(ttl, defaultTTL time.Duration) (time.Duration, bool) {
	switch {
	case ttl == NoExpiration:
		return 0, true
	case ttl < 0:
		if defaultTTL <= 0 {
			return 0, true
		}
		return defaultTTL, true
	case ttl == 0:
		return 0, false
	default:
		return ttl, true
	}
}

// cloneEntry copies the payload so callers cannot alter a stored entry
func cloneEntry(entry Entry) Entry {
	if entry.Data != nil {
		entry.Data = append(json.RawMessage(nil), entry.Data...)
	}
	return entry
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Lookup always returns not found
func (nc *NoopCache) Lookup(key string) (Entry, bool) {
	return Entry{}, false
}

// Store does nothing
func (nc *NoopCache) Store(key string, ttl time.Duration, entry Entry) {}

// Close does nothing
func (nc *NoopCache) Close() {}
