// Package observability provides logging, metrics, and tracing hooks for the
// configuration store.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// NamespaceLogger returns a logger that tags every record with the namespace.
func NamespaceLogger(logger *slog.Logger, namespace string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("namespace", namespace))
}

// LogLoadAllStart logs the start of a full configuration load.
func LogLoadAllStart(logger *slog.Logger, source string) {
	if logger == nil {
		return
	}
	logger.Debug("loading configuration",
		slog.String("source", source),
	)
}

// LogLoadAllComplete logs the outcome of a full configuration load.
func LogLoadAllComplete(logger *slog.Logger, loaded, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("configuration loaded",
		slog.Int("namespaces", loaded),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNamespaceLoaded logs a successfully installed namespace.
func LogNamespaceLoaded(logger *slog.Logger, namespace string, records int) {
	if logger == nil {
		return
	}
	logger.Debug("namespace loaded",
		slog.String("namespace", namespace),
		slog.Int("records", records),
	)
}

// LogLoadError logs a namespace that could not be loaded (non-fatal).
// The namespace stays absent; other namespaces are unaffected.
func LogLoadError(logger *slog.Logger, namespace string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("skipping unreadable configuration",
		slog.String("namespace", namespace),
		slog.String("error", err.Error()),
	)
}

// LogSave logs a namespace written to its backend.
func LogSave(logger *slog.Logger, namespace string, records int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("namespace saved",
		slog.String("namespace", namespace),
		slog.Int("records", records),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSaveError logs a failed save. The error is still returned to the caller.
func LogSaveError(logger *slog.Logger, namespace string, err error) {
	if logger == nil {
		return
	}
	logger.Error("namespace save failed",
		slog.String("namespace", namespace),
		slog.String("error", err.Error()),
	)
}

// LogListenerPanic logs a change listener that panicked during delivery.
func LogListenerPanic(logger *slog.Logger, namespace, key string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("change listener panicked",
		slog.String("namespace", namespace),
		slog.String("key", key),
		slog.Any("panic", recovered),
	)
}

// LogReload logs a namespace reloaded from an external edit.
func LogReload(logger *slog.Logger, namespace string, changed int) {
	if logger == nil {
		return
	}
	logger.Info("namespace reloaded",
		slog.String("namespace", namespace),
		slog.Int("changed", changed),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
