package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
)

// ErrCircuitOpen is returned without dispatching while a service's breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

type cbState int

const (
	cbClosed cbState = iota
	cbOpen
	cbHalfOpen
)

func (s cbState) String() string {
	switch s {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// CircuitBreakerConfigFrom converts the file configuration
func CircuitBreakerConfigFrom(cfg *config.CircuitBreakerConfig) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    cfg.FailureThreshold,
		RecoveryTimeout:     cfg.GetRecoveryTimeoutDuration(),
		HalfOpenMaxRequests: cfg.HalfOpenMaxRequests,
	}
}

// CircuitBreaker stops dispatching to a service after consecutive transport failures
type CircuitBreaker struct {
	cfg             CircuitBreakerConfig
	state           cbState
	failures        int
	halfOpenSuccess int
	lastFailureAt   time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = config.DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = time.Duration(config.DefaultRecoveryTimeout) * time.Millisecond
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = config.DefaultHalfOpenMaxRequests
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: cbClosed,
		now:   time.Now,
	}
}

// AllowRequest returns true if a request should be allowed
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case cbHalfOpen:
		return cb.halfOpenSuccess < cb.cfg.HalfOpenMaxRequests
	case cbOpen:
		if cb.now().Sub(cb.lastFailureAt) >= cb.cfg.RecoveryTimeout {
			cb.state = cbHalfOpen
			cb.halfOpenSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful exchange
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case cbHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.cfg.HalfOpenMaxRequests {
			cb.state = cbClosed
			cb.failures = 0
		}
	case cbClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed exchange
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureAt = cb.now()

	switch cb.state {
	case cbClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = cbOpen
		}
	case cbHalfOpen:
		cb.state = cbOpen
		cb.halfOpenSuccess = 0
	}
}

// State returns the current state name
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Breaker wraps a Transport with one circuit breaker per service.
// It never retries; an open breaker fails the exchange immediately.
type Breaker struct {
	next     Transport
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewBreaker creates a new Breaker around next
func NewBreaker(next Transport, cfg CircuitBreakerConfig, logger zerolog.Logger) *Breaker {
	return &Breaker{
		next:     next,
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger.With().Str("component", "circuit-breaker").Logger(),
	}
}

// For returns the breaker of a service, creating it on first use
func (b *Breaker) For(service string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[service]
	if !ok {
		cb = NewCircuitBreaker(b.cfg)
		b.breakers[service] = cb
	}
	return cb
}

// Send implements Transport
func (b *Breaker) Send(ctx context.Context, service string, settings *config.ServiceConfig, payload Payload, headers []Header) (*jsonrpc.Reply, error) {
	cb := b.For(service)
	if !cb.AllowRequest() {
		return nil, ErrCircuitOpen
	}

	reply, err := b.next.Send(ctx, service, settings, payload, headers)
	if err != nil {
		cb.RecordFailure()
		b.logger.Debug().
			Err(err).
			Str("service", service).
			Str("state", cb.State()).
			Msg("exchange failed")
		return nil, err
	}

	cb.RecordSuccess()
	return reply, nil
}
