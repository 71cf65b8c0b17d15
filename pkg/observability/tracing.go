package observability

import (
	"context"

	"github.com/aretw0/promptflow/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies promptflow spans.
const InstrumentationName = "github.com/aretw0/promptflow"

// Tracer returns the promptflow tracer of tp, or of the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// SpanEvents annotates the active span with node leave and job status
// events. Node enter needs no event since the node span starts there.
func SpanEvents() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			span := trace.SpanFromContext(ctx)
			if !span.IsRecording() {
				return
			}
			attrs := []attribute.KeyValue{
				attribute.String("node.type", e.NodeType),
				attribute.Bool("node.failed", e.Failed),
				attribute.Int64("node.duration_ms", e.Duration.Milliseconds()),
			}
			if e.Output == nil {
				attrs = append(attrs, attribute.Bool("node.branch_stopped", true))
			}
			span.AddEvent("node.leave", trace.WithAttributes(attrs...))
		},
		OnJobStatus: func(ctx context.Context, e *domain.JobEvent) {
			span := trace.SpanFromContext(ctx)
			if !span.IsRecording() {
				return
			}
			span.AddEvent("job.status", trace.WithAttributes(
				attribute.String("job.id", e.JobID),
				attribute.String("job.status", string(e.Status)),
			))
		},
	}
}
