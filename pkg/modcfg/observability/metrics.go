package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records configuration store metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSet records a value written to a namespace.
	RecordSet(ctx context.Context, namespace string)

	// RecordLoad records a namespace load attempt and its outcome.
	RecordLoad(ctx context.Context, namespace string, err error)

	// RecordSave records a namespace save with its duration and size.
	RecordSave(ctx context.Context, namespace string, records int, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	sets         metric.Int64Counter
	loads        metric.Int64Counter
	loadFailures metric.Int64Counter
	saveLatency  metric.Float64Histogram
	saveRecords  metric.Int64Histogram
	saveFailures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates the instruments on the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("modcfg")

	sets, err := meter.Int64Counter("modcfg.set.count",
		metric.WithDescription("Number of values written"),
	)
	if err != nil {
		return nil, err
	}

	loads, err := meter.Int64Counter("modcfg.load.count",
		metric.WithDescription("Number of namespace load attempts"),
	)
	if err != nil {
		return nil, err
	}

	loadFailures, err := meter.Int64Counter("modcfg.load.failures",
		metric.WithDescription("Number of namespaces skipped because they failed to load"),
	)
	if err != nil {
		return nil, err
	}

	saveLatency, err := meter.Float64Histogram("modcfg.save.latency_ms",
		metric.WithDescription("Namespace save latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	saveRecords, err := meter.Int64Histogram("modcfg.save.size_records",
		metric.WithDescription("Records written per namespace save"),
	)
	if err != nil {
		return nil, err
	}

	saveFailures, err := meter.Int64Counter("modcfg.save.failures",
		metric.WithDescription("Number of failed namespace saves"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		sets:         sets,
		loads:        loads,
		loadFailures: loadFailures,
		saveLatency:  saveLatency,
		saveRecords:  saveRecords,
		saveFailures: saveFailures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSet records a write.
func (m *otelMetrics) RecordSet(ctx context.Context, namespace string) {
	m.sets.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

// RecordLoad records a load attempt.
func (m *otelMetrics) RecordLoad(ctx context.Context, namespace string, err error) {
	attrs := metric.WithAttributes(attribute.String("namespace", namespace))
	m.loads.Add(ctx, 1, attrs)
	if err != nil {
		m.loadFailures.Add(ctx, 1, attrs)
	}
}

// RecordSave records a save.
func (m *otelMetrics) RecordSave(ctx context.Context, namespace string, records int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("namespace", namespace),
		attribute.Bool("success", err == nil),
	}
	m.saveLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	if err != nil {
		m.saveFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	m.saveRecords.Record(ctx, int64(records), metric.WithAttributes(attrs...))
}
