package batcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rpcclient/internal/cache"
	"rpcclient/internal/config"
	"rpcclient/internal/jsonrpc"
	"rpcclient/internal/metrics"
	"rpcclient/internal/transport"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithMetrics records dispatches and results on the collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithIDGenerator replaces the random correlation id generator
func WithIDGenerator(gen func() jsonrpc.ID) Option {
	return func(c *Coordinator) {
		c.newID = gen
	}
}

// WithClientLabel labels every call, overriding the service's configured label
func WithClientLabel(label string) Option {
	return func(c *Coordinator) {
		c.clientLabel = label
	}
}

// cacheDirective is the pending cache request for the next call
type cacheDirective struct {
	ttl time.Duration
}

// Coordinator accumulates calls and executes them in cycles
type Coordinator struct {
	cfg       *config.Config
	transport transport.Transport
	cache     cache.Adapter
	metrics   *metrics.Collector
	logger    zerolog.Logger

	newID       func() jsonrpc.ID
	clientLabel string

	service   string
	batching  bool
	directive *cacheDirective
	headers   *headerSet
	computed  map[string][]namedHeader // service -> configured headers
	cycle     *cycle
}

// New creates a Coordinator. The configuration is resolved once here and
// kept for the coordinator's lifetime. A nil adapter disables caching.
func New(cfg *config.Config, tr transport.Transport, adapter cache.Adapter, logger zerolog.Logger, opts ...Option) *Coordinator {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if adapter == nil {
		adapter = cache.NewNoopCache()
	}

	c := &Coordinator{
		cfg:       cfg,
		transport: tr,
		cache:     adapter,
		logger:    logger.With().Str("component", "batcher").Logger(),
		newID:     randomID,
		service:   cfg.DefaultService,
		headers:   newHeaderSet(),
		computed:  make(map[string][]namedHeader),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomID() jsonrpc.ID {
	return jsonrpc.NewIDString(uuid.NewString())
}

// SelectService binds subsequent calls to a named service
func (c *Coordinator) SelectService(name string) *Coordinator {
	c.service = name
	return c
}

// Service returns the bound service name
func (c *Coordinator) Service() string {
	return c.service
}

// BeginBatch switches to deferred mode and discards any previous cycle
func (c *Coordinator) BeginBatch() *Coordinator {
	c.batching = true
	c.cycle = newCycle(true)
	return c
}

// Batching returns true while calls are being deferred
func (c *Coordinator) Batching() bool {
	return c.batching
}

// WithCache marks the next call as cacheable. Pass cache.DefaultTTL to use
// the adapter's default expiration or cache.NoExpiration to keep the result
// until evicted. A zero ttl expires the stored result immediately.
func (c *Coordinator) WithCache(ttl time.Duration) *Coordinator {
	c.directive = &cacheDirective{ttl: ttl}
	return c
}

// SetHeader adds an outbound header. The first value registered for a
// name wins; later registrations of the same name are ignored.
func (c *Coordinator) SetHeader(name string, value HeaderValue) *Coordinator {
	if !c.headers.add(name, value) {
		c.logger.Debug().Str("header", name).Msg("header already set, ignoring")
	}
	return c
}

// SetHeaders adds several headers; see SetHeader
func (c *Coordinator) SetHeaders(headers map[string]HeaderValue) *Coordinator {
	for name, value := range headers {
		c.SetHeader(name, value)
	}
	return c
}

// Invoke issues a call. In immediate mode the call is executed before
// Invoke returns; in batch mode the returned Result stays pending until
// Execute runs.
func (c *Coordinator) Invoke(ctx context.Context, method string, params interface{}) *Result {
	if !c.batching || c.cycle == nil {
		c.cycle = newCycle(c.batching)
	}

	rec := &CallRecord{
		ID:          c.newID(),
		Method:      method,
		Service:     c.service,
		ClientLabel: c.labelFor(c.service),
	}
	if c.directive != nil {
		rec.Cacheable = true
		rec.CacheTTL = c.directive.ttl
		c.directive = nil
	}

	res := newResult(rec.ID)

	raw, err := jsonrpc.MarshalParams(params)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Msg("rejecting call with unencodable params")
		c.fail(rec, res, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
		return res
	}
	rec.Params = raw

	c.cycle.add(rec, res)

	if !c.batching {
		// Cycle-wide failures are already recorded in res
		_ = c.Execute(ctx)
	}
	return res
}

// labelFor returns the client label for calls to a service
func (c *Coordinator) labelFor(service string) string {
	if c.clientLabel != "" {
		return c.clientLabel
	}
	if settings := c.cfg.Service(service); settings != nil {
		return settings.ClientLabel
	}
	return ""
}

// Execute runs the accumulated calls and resolves their results. It
// returns the cycle-wide failure (configuration, transport or protocol),
// if any; per-call errors are only reported through each Result. Executing
// with nothing accumulated does nothing.
func (c *Coordinator) Execute(ctx context.Context) error {
	if c.cycle.isEmpty() {
		return nil
	}

	cyc := c.cycle
	defer func() {
		c.directive = nil
		c.batching = false
		c.cycle = nil
	}()

	return c.dispatch(ctx, cyc, cyc.take())
}

// succeed resolves a result and records it
func (c *Coordinator) succeed(rec *CallRecord, res *Result, data []byte) bool {
	if !res.succeed(data) {
		return false
	}
	c.metrics.ObserveResult(rec.Service, true)
	return true
}

// fail resolves a result as failed and records it
func (c *Coordinator) fail(rec *CallRecord, res *Result, err *jsonrpc.Error) bool {
	if !res.fail(err) {
		return false
	}
	c.metrics.ObserveResult(rec.Service, false)
	return true
}
