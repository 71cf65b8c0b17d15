package runner

import (
	"log/slog"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"go.opentelemetry.io/otel/trace"
)

// Option defines a functional option for configuring the JobRunner.
type Option func(*JobRunner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *JobRunner) {
		r.logger = logger
	}
}

// WithHooks registers lifecycle callbacks for every job, in addition to the
// job status events the runner emits itself.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(r *JobRunner) {
		r.hooks = r.hooks.Merge(h)
	}
}

// WithTracer configures the tracer handed to graph runs.
func WithTracer(t trace.Tracer) Option {
	return func(r *JobRunner) {
		r.tracer = t
	}
}

// WithGraphOptions adds options applied when a stored graph is rebuilt for
// execution.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(r *JobRunner) {
		r.graphOpts = append(r.graphOpts, opts...)
	}
}

// WithMaxInputSize bounds values accepted by SendInput. Zero falls back to
// PROMPTFLOW_MAX_INPUT_SIZE and then DefaultMaxInputSize.
func WithMaxInputSize(n int) Option {
	return func(r *JobRunner) {
		r.maxInput = n
	}
}
