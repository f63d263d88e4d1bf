package config

import "time"

// TransportKind selects the wire transport of a service
type TransportKind string

const (
	TransportHTTP TransportKind = "http"
	TransportWS   TransportKind = "ws"
)

// CacheBackend selects the cache adapter implementation
type CacheBackend string

const (
	CacheNone    CacheBackend = "none"
	CacheMemory  CacheBackend = "memory"
	CacheGoCache CacheBackend = "gocache"
	CacheRedis   CacheBackend = "redis"
)

// Signing schemes for computed headers
const (
	SignHMACSHA3 = "hmac-sha3"
	SignJWT      = "jwt"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel       string                `json:"logLevel" yaml:"logLevel"`
	DefaultService string                `json:"defaultService" yaml:"defaultService"`
	RequestTimeout int                   `json:"requestTimeout" yaml:"requestTimeout"` // ms
	Cache          *CacheConfig          `json:"cache,omitempty" yaml:"cache,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty"`
	Services       []ServiceConfig       `json:"services" yaml:"services"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Backend     CacheBackend `json:"backend" yaml:"backend"`
	Size        int          `json:"size" yaml:"size"`             // number of entries (memory backend)
	DefaultTTL  int          `json:"defaultTtl" yaml:"defaultTtl"` // minutes
	RedisAddr   string       `json:"redisAddr" yaml:"redisAddr"`
	RedisDB     int          `json:"redisDb" yaml:"redisDb"`
	RedisPrefix string       `json:"redisPrefix" yaml:"redisPrefix"`
}

// CircuitBreakerConfig represents per-service circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	FailureThreshold    int  `json:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeout     int  `json:"recoveryTimeout" yaml:"recoveryTimeout"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests" yaml:"halfOpenMaxRequests"`
}

// ServiceConfig holds the connection settings of one named remote service
type ServiceConfig struct {
	Name        string         `json:"name" yaml:"name"`
	Host        string         `json:"host" yaml:"host"`
	AuthHeader  string         `json:"authHeader" yaml:"authHeader"`
	AuthKey     string         `json:"authKey" yaml:"authKey"`
	ClientLabel string         `json:"clientLabel" yaml:"clientLabel"`
	Transport   TransportKind  `json:"transport" yaml:"transport"`
	Headers     []HeaderConfig `json:"headers" yaml:"headers"`
}

// HeaderConfig is an additional outbound header. Exactly one of Value,
// Script or Sign is set.
type HeaderConfig struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Script string `json:"script,omitempty" yaml:"script,omitempty"` // JS source defining header(payloads)
	Sign   string `json:"sign,omitempty" yaml:"sign,omitempty"`     // hmac-sha3 | jwt, keyed with AuthKey
}

// IsStatic returns true if the header has a literal value
func (h HeaderConfig) IsStatic() bool {
	return h.Script == "" && h.Sign == ""
}

// Default values
const (
	DefaultLogLevel            = "info"
	DefaultRequestTimeout      = 10000 // ms
	DefaultCacheBackend        = CacheMemory
	DefaultCacheSize           = 10000
	DefaultCacheTTL            = 60 // minutes
	DefaultRedisPrefix         = "rpcclient:"
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30000 // ms
	DefaultHalfOpenMaxRequests = 2
	DefaultTransport           = TransportHTTP
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// IsCacheEnabled returns true if a cache backend other than none is configured
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Backend != CacheNone
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// Service returns the settings of a named service, or nil if unknown
func (c *Config) Service(name string) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// GetDefaultTTLDuration returns the cache default TTL as time.Duration
func (c *CacheConfig) GetDefaultTTLDuration() time.Duration {
	return time.Duration(c.DefaultTTL) * time.Minute
}

// GetRecoveryTimeoutDuration returns the recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}

// HasHost returns true if the service has a resolvable host
func (s *ServiceConfig) HasHost() bool {
	return s != nil && s.Host != ""
}

// HasAuth returns true if both the auth header name and key are set
func (s *ServiceConfig) HasAuth() bool {
	return s.AuthHeader != "" && s.AuthKey != ""
}
