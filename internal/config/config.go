package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates configuration bytes
func Parse(data []byte, asYAML bool) (*Config, error) {
	cfg := &Config{}
	if asYAML {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DefaultService == "" && len(cfg.Services) == 1 {
		cfg.DefaultService = cfg.Services[0].Name
	}

	if cfg.Cache != nil {
		if cfg.Cache.Backend == "" {
			cfg.Cache.Backend = DefaultCacheBackend
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
		if cfg.Cache.DefaultTTL == 0 {
			cfg.Cache.DefaultTTL = DefaultCacheTTL
		}
		if cfg.Cache.RedisPrefix == "" {
			cfg.Cache.RedisPrefix = DefaultRedisPrefix
		}
	}

	if cfg.CircuitBreaker != nil {
		if cfg.CircuitBreaker.FailureThreshold == 0 {
			cfg.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
		}
		if cfg.CircuitBreaker.RecoveryTimeout == 0 {
			cfg.CircuitBreaker.RecoveryTimeout = DefaultRecoveryTimeout
		}
		if cfg.CircuitBreaker.HalfOpenMaxRequests == 0 {
			cfg.CircuitBreaker.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
		}
	}

	for i := range cfg.Services {
		if cfg.Services[i].Transport == "" {
			cfg.Services[i].Transport = DefaultTransport
		}
	}
}

// validate checks the configuration for errors. A service without a host
// is accepted here; dispatching to it fails at call time.
func validate(cfg *Config) error {
	serviceNames := make(map[string]bool)
	for i, service := range cfg.Services {
		if service.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if serviceNames[service.Name] {
			return fmt.Errorf("service[%d]: duplicate service name '%s'", i, service.Name)
		}
		serviceNames[service.Name] = true

		if service.Transport != TransportHTTP && service.Transport != TransportWS {
			return fmt.Errorf("service '%s': transport must be 'http' or 'ws'", service.Name)
		}

		for j, header := range service.Headers {
			if header.Name == "" {
				return fmt.Errorf("service '%s', header[%d]: name is required", service.Name, j)
			}
			if header.Script != "" && header.Sign != "" {
				return fmt.Errorf("service '%s', header '%s': script and sign are exclusive", service.Name, header.Name)
			}
			if header.Sign != "" {
				if header.Sign != SignHMACSHA3 && header.Sign != SignJWT {
					return fmt.Errorf("service '%s', header '%s': sign must be '%s' or '%s'",
						service.Name, header.Name, SignHMACSHA3, SignJWT)
				}
				if service.AuthKey == "" {
					return fmt.Errorf("service '%s', header '%s': signing requires authKey", service.Name, header.Name)
				}
			}
		}
	}

	if cfg.DefaultService != "" && !serviceNames[cfg.DefaultService] {
		return fmt.Errorf("defaultService '%s' is not a configured service", cfg.DefaultService)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.Cache != nil {
		switch cfg.Cache.Backend {
		case CacheNone, CacheMemory, CacheGoCache:
		case CacheRedis:
			if cfg.Cache.RedisAddr == "" {
				return fmt.Errorf("cache.redisAddr is required for the redis backend")
			}
		default:
			return fmt.Errorf("cache.backend must be one of: none, memory, gocache, redis")
		}
		if cfg.Cache.Size < 0 {
			return fmt.Errorf("cache.size must be non-negative")
		}
		if cfg.Cache.DefaultTTL < 0 {
			return fmt.Errorf("cache.defaultTtl must be non-negative")
		}
	}

	if cfg.CircuitBreaker != nil {
		if cfg.CircuitBreaker.FailureThreshold < 0 || cfg.CircuitBreaker.RecoveryTimeout < 0 {
			return fmt.Errorf("circuitBreaker values must be non-negative")
		}
	}

	return nil
}
