package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Global tracer/meter: a no-op unless the host process installs providers.
var (
	tracer = otel.Tracer("moltbridge/server")
	meter  = otel.Meter("moltbridge/server")

	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
)

func init() {
	toolCalls, _ = meter.Int64Counter("moltbridge.tool.calls",
		metric.WithDescription("Tool executions by tool and status"))
	toolDuration, _ = meter.Float64Histogram("moltbridge.tool.duration",
		metric.WithDescription("Tool execution duration"),
		metric.WithUnit("ms"))
}

// StartToolSpan starts a span covering one tool execution.
func StartToolSpan(ctx context.Context, module, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tools/call "+tool,
		trace.WithAttributes(
			attribute.String("moltbridge.module", module),
			attribute.String("moltbridge.tool", tool),
		))
}

// StartBridgeSpan starts a client span covering one outbound bridge call.
func StartBridgeSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("moltbridge.path", path),
		))
}

// RecordBridgeStatus attaches the upstream HTTP status to a bridge span.
func RecordBridgeStatus(span trace.Span, status int, err error) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strconv.Itoa(status))
	}
}

// EndSpan finishes a span, recording the error if any.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordToolCall records the per-call counter and duration histogram.
func RecordToolCall(ctx context.Context, tool, status string, durationMs int64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	toolCalls.Add(ctx, 1, attrs)
	toolDuration.Record(ctx, float64(durationMs), attrs)
}
