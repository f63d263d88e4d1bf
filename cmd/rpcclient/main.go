package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rpcclient/internal/batcher"
	"rpcclient/internal/cache"
	"rpcclient/internal/config"
	"rpcclient/internal/metrics"
	"rpcclient/internal/transport"
)

// options are the flags shared by all commands
type options struct {
	configPath  string
	service     string
	logLevel    string
	clientLabel string
	metrics     bool
}

// app is the coordinator and everything it owns for one command run
type app struct {
	coordinator *batcher.Coordinator
	cache       cache.Adapter
	registry    *prometheus.Registry
	logger      zerolog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "rpcclient",
		Short:        "Issue JSON-RPC 2.0 calls to configured services",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file (.yaml, .yml or .json)")
	root.PersistentFlags().StringVar(&opts.service, "service", "", "service to call (defaults to defaultService)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().StringVar(&opts.clientLabel, "client-label", "", "label sent with every call")
	root.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(newCallCommand(opts), newBatchCommand(opts))
	return root
}

// setup loads the configuration and wires the coordinator
func setup(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := setupLogger(level)
	logger.Debug().
		Str("config", opts.configPath).
		Int("services", len(cfg.Services)).
		Str("defaultService", cfg.DefaultService).
		Msg("configuration loaded")

	adapter, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	timeout := cfg.GetRequestTimeoutDuration()
	var tr transport.Transport = transport.NewMux(map[config.TransportKind]transport.Transport{
		config.TransportHTTP: transport.NewHTTPTransport(timeout, logger),
		config.TransportWS:   transport.NewWSTransport(timeout, logger),
	})
	if cfg.IsCircuitBreakerEnabled() {
		tr = transport.NewBreaker(tr, transport.CircuitBreakerConfigFrom(cfg.CircuitBreaker), logger)
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	coordOpts := []batcher.Option{batcher.WithMetrics(collector)}
	if opts.clientLabel != "" {
		coordOpts = append(coordOpts, batcher.WithClientLabel(opts.clientLabel))
	}
	coordinator := batcher.New(cfg, tr, adapter, logger, coordOpts...)
	if opts.service != "" {
		coordinator.SelectService(opts.service)
	}

	return &app{
		coordinator: coordinator,
		cache:       adapter,
		registry:    registry,
		logger:      logger,
	}, nil
}

// close releases the cache and dumps metrics if asked to
func (a *app) close(opts *options) {
	a.cache.Close()
	if !opts.metrics {
		return
	}

	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to gather metrics")
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			a.logger.Error().Err(err).Msg("failed to write metrics")
			return
		}
	}
}

// setupLogger configures the zerolog logger. Output goes to stderr so
// results on stdout stay machine readable.
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
