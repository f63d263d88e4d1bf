// Package metrics exposes prometheus collectors for call dispatching.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cache result labels
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Collector groups the coordinator metrics. A nil *Collector records nothing.
type Collector struct {
	dispatches       *prometheus.CounterVec
	results          *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them. A nil registerer
// falls back to the default registry.
func NewCollector(registry prometheus.Registerer) (*Collector, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	c := &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcclient_dispatches_total",
			Help: "Transport exchanges performed, by service and payload mode",
		}, []string{"service", "mode"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcclient_results_total",
			Help: "Finalized call results, by service and outcome",
		}, []string{"service", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcclient_cache_lookups_total",
			Help: "Cache lookups for cacheable calls, by service and result",
		}, []string{"service", "result"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpcclient_dispatch_duration_seconds",
			Help:    "Latency of transport exchanges",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}

	for _, collector := range []prometheus.Collector{c.dispatches, c.results, c.cacheLookups, c.dispatchDuration} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveDispatch records one transport exchange
func (c *Collector) ObserveDispatch(service string, batch bool, took time.Duration) {
	if c == nil {
		return
	}
	mode := "single"
	if batch {
		mode = "batch"
	}
	c.dispatches.WithLabelValues(service, mode).Inc()
	c.dispatchDuration.WithLabelValues(service).Observe(took.Seconds())
}

// ObserveResult records a finalized result
func (c *Collector) ObserveResult(service string, success bool) {
	if c == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	c.results.WithLabelValues(service, outcome).Inc()
}

// ObserveCache records a cache lookup
func (c *Collector) ObserveCache(service string, hit bool) {
	if c == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	c.cacheLookups.WithLabelValues(service, result).Inc()
}
