package cache

import (
	"fmt"

	"github.com/rs/zerolog"

	"rpcclient/internal/config"
)

// New creates the adapter selected by the configuration.
// A nil config or the none backend yields a NoopCache.
func New(cfg *config.CacheConfig, logger zerolog.Logger) (Adapter, error) {
	if cfg == nil {
		return NewNoopCache(), nil
	}

	defaultTTL := cfg.GetDefaultTTLDuration()
	switch cfg.Backend {
	case config.CacheNone:
		return NewNoopCache(), nil
	case config.CacheMemory:
		mc, err := NewMemoryCache(cfg.Size, defaultTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		return mc, nil
	case config.CacheGoCache:
		return NewGoCache(defaultTTL), nil
	case config.CacheRedis:
		return NewRedisCache(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix, defaultTTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
