package cache

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisTimeout bounds every cache round trip; the cache must never stall a call
const redisTimeout = 500 * time.Millisecond

// RedisCache stores encoded entries in Redis, shared across processes
type RedisCache struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// NewRedisCache creates a Redis backed adapter
func NewRedisCache(addr string, db int, prefix string, defaultTTL time.Duration, logger zerolog.Logger) *RedisCache {
	return NewRedisCacheWithClient(rdb.NewClient(&rdb.Options{Addr: addr, DB: db}), prefix, defaultTTL, logger)
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *rdb.Client, prefix string, defaultTTL time.Duration, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		c:          client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     logger.With().Str("component", "cache-redis").Logger(),
	}
}

// Lookup retrieves an entry from Redis. Errors read as a miss.
func (r *RedisCache) Lookup(key string) (Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	b, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, rdb.Nil) {
			r.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		}
		return Entry{}, false
	}

	entry, err := DecodeEntry(b)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return Entry{}, false
	}
	return entry, true
}

// Store writes an entry to Redis
func (r *RedisCache) Store(key string, ttl time.Duration, entry Entry) {
	b, err := EncodeEntry(entry)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	lifetime, keep := expiry(ttl, r.defaultTTL)
	if !keep {
		if err := r.c.Del(ctx, r.prefix+key).Err(); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		}
		return
	}

	// go-redis treats 0 as no expiration
	if err := r.c.Set(ctx, r.prefix+key, b, lifetime).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache store failed")
	}
}

// Close closes the Redis client
func (r *RedisCache) Close() {
	_ = r.c.Close()
}
