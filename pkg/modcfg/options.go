package modcfg

import (
	"log/slog"

	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
)

// Option configures a Store.
type Option func(*Store)

// WithBackend sets where namespaces are loaded from and saved to.
// Without a backend the store is memory-only and LoadAll, LoadNamespace
// and SaveNamespace return ErrNoBackend.
//
// Example:
//
//	store := modcfg.New(modcfg.WithBackend(persist.NewDir("config", persist.JSON)))
func WithBackend(b persist.Backend) Option {
	return func(s *Store) {
		s.backend = b
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
// Pass nil to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics{}.
//
// Example:
//
//	store := modcfg.New(modcfg.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSpanManager sets the tracer for load and save operations.
// Default: observability.NoopSpanManager{}.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Store) {
		if sm != nil {
			s.spans = sm
		}
	}
}
