package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle for blocking store operations.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartLoadAllSpan starts a span covering a full configuration load.
	StartLoadAllSpan(ctx context.Context, source string) (context.Context, trace.Span)

	// StartLoadSpan starts a span for loading one namespace.
	StartLoadSpan(ctx context.Context, namespace string) (context.Context, trace.Span)

	// StartSaveSpan starts a span for saving one namespace.
	StartSaveSpan(ctx context.Context, namespace string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
// The tracer is resolved per call so a provider installed after
// construction is still honoured.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) tracer() trace.Tracer {
	return otel.Tracer("modcfg")
}

// StartLoadAllSpan starts a span covering a full configuration load.
func (m *otelSpanManager) StartLoadAllSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "modcfg.load_all",
		trace.WithAttributes(attribute.String("config.source", source)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartLoadSpan starts a span for loading one namespace.
func (m *otelSpanManager) StartLoadSpan(ctx context.Context, namespace string) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "modcfg.load",
		trace.WithAttributes(attribute.String("config.namespace", namespace)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartSaveSpan starts a span for saving one namespace.
func (m *otelSpanManager) StartSaveSpan(ctx context.Context, namespace string) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "modcfg.save",
		trace.WithAttributes(attribute.String("config.namespace", namespace)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
