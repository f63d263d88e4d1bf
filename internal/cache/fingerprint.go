package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Fingerprint creates a deterministic cache key for a call.
// Object keys in params are canonicalized (RFC 8785), positional params
// keep their order.
func Fingerprint(service, method string, params json.RawMessage) string {
	normalizedParams := normalizeParams(params)
	hash := sha256.Sum256(normalizedParams)
	paramsHash := hex.EncodeToString(hash[:16])

	return service + ":" + method + ":" + paramsHash
}

// normalizeParams canonicalizes JSON params for consistent hashing
func normalizeParams(params json.RawMessage) []byte {
	if len(params) == 0 {
		return []byte("[]")
	}

	canonical, err := jcs.Transform(params)
	if err != nil {
		return params // Return as-is if cannot parse
	}
	return canonical
}
