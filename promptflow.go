package promptflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/aretw0/promptflow/pkg/runner"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for using promptflow as a library.
// It loads graph documents with the built-in node catalog and runs them in
// the calling goroutine.
type Engine struct {
	registry *nodes.Registry
	runner   *runner.JobRunner
	services *nodes.Services
	hooks    domain.LifecycleHooks
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithServices replaces the collaborators handed to built-in nodes (HTTP
// client, LLM client, clock, randomness).
func WithServices(svc *nodes.Services) Option {
	return func(e *Engine) {
		e.services = svc
	}
}

// WithTracer records a span per run and per node.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New initializes an Engine backed by the default node registry.
func New(opts ...Option) *Engine {
	e := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.services == nil {
		e.services = nodes.DefaultServices()
		e.services.Logger = e.logger
	}
	e.registry = nodes.Default(e.services)

	ropts := []runner.Option{runner.WithLogger(e.logger), runner.WithHooks(e.hooks)}
	if e.tracer != nil {
		ropts = append(ropts, runner.WithTracer(e.tracer))
	}
	e.runner = runner.New(runner.Deps{Factory: e.registry}, ropts...)
	return e
}

// Registry exposes the node registry so callers can add custom node types
// before loading documents that use them.
func (e *Engine) Registry() *nodes.Registry {
	return e.registry
}

// Load reads a JSON or YAML graph document from path.
func (e *Engine) Load(path string) (*graph.Graph, error) {
	doc, err := file.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return e.Build(doc)
}

// Parse builds a graph from an in-memory JSON or YAML document.
func (e *Engine) Parse(data []byte) (*graph.Graph, error) {
	doc, err := file.DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return e.Build(doc)
}

// Build instantiates every node of doc through the registry.
func (e *Engine) Build(doc *domain.GraphDocument) (*graph.Graph, error) {
	return graph.FromDocument(doc, e.registry, graph.WithLogger(e.logger))
}

// Run initializes and executes g. A nil st starts from an empty state.
// input answers input nodes; when nil, the first node requesting input
// aborts the run with domain.ErrInputUnavailable.
func (e *Engine) Run(ctx context.Context, g *graph.Graph, st *domain.State, input graph.InputFunc) (*domain.State, error) {
	if st == nil {
		st = domain.NewState()
	}
	return e.runner.RunLocal(ctx, g, st, input)
}

// RunText executes g, answering input nodes line by line from r and
// writing their prompts to w.
func (e *Engine) RunText(ctx context.Context, g *graph.Graph, st *domain.State, r io.Reader, w io.Writer) (*domain.State, error) {
	return e.Run(ctx, g, st, runner.NewTextInput(r, w, nil).Input)
}
