package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/promptflow/pkg/graph"

// InputFunc obtains the value for a node that requested input. It blocks
// until a value arrives or ctx is done.
type InputFunc func(ctx context.Context, n *Node, req *BeforeResult) (string, error)

// LogFunc receives one entry per node output.
type LogFunc func(ctx context.Context, entry domain.LogEntry)

type runConfig struct {
	jobID  string
	logger *slog.Logger
	logFn  LogFunc
	input  InputFunc
	hooks  domain.LifecycleHooks
	tracer trace.Tracer
}

// RunOption configures a single traversal.
type RunOption func(*runConfig)

// WithJobID tags logs, events and spans with the owning job.
func WithJobID(id string) RunOption {
	return func(c *runConfig) { c.jobID = id }
}

// WithRunLogger overrides the graph logger for one traversal.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = logger }
}

// WithLogFunc receives a log entry for every node output.
func WithLogFunc(fn LogFunc) RunOption {
	return func(c *runConfig) { c.logFn = fn }
}

// WithInputFunc supplies blocking input to nodes that request it.
// Without it such nodes abort the run with domain.ErrInputUnavailable.
func WithInputFunc(fn InputFunc) RunOption {
	return func(c *runConfig) { c.input = fn }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(h domain.LifecycleHooks) RunOption {
	return func(c *runConfig) { c.hooks = h }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) RunOption {
	return func(c *runConfig) { c.tracer = t }
}

func (g *Graph) runConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{logger: g.logger, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.jobID != "" {
		cfg.logger = cfg.logger.With("job_id", cfg.jobID)
	}
	return cfg
}

// Run traverses the graph from its Start node and returns the final state.
// A nil st starts from an empty state. The returned error is either
// domain.ErrNoStartNode or an InfrastructureError; node and condition
// failures never surface here.
func (g *Graph) Run(ctx context.Context, st *domain.State, opts ...RunOption) (*domain.State, error) {
	cfg := g.runConfig(opts)
	st = prepare(st)

	start := g.StartNode()
	if start == nil {
		return st, domain.ErrNoStartNode
	}

	ctx, span := cfg.tracer.Start(ctx, "promptflow.run", trace.WithAttributes(
		attribute.String("graph.uid", g.UID),
		attribute.String("job.id", cfg.jobID),
	))
	defer span.End()

	q := NewWorkQueue()
	q.Push(start)
	g.running.Store(true)
	cfg.logger.Info("running graph", "graph_uid", g.UID, "graph_label", g.Name)

	stopped, err := g.drain(ctx, q, st, cfg)
	g.running.Store(false)
	endSpan(span, err)
	if stopped {
		cfg.logger.Info("graph stopped", "graph_uid", g.UID)
	}
	return st, err
}

// Initialize runs the Init node, once per graph instance. Later calls, and
// graphs without an Init node, return st unchanged.
func (g *Graph) Initialize(ctx context.Context, st *domain.State, opts ...RunOption) (*domain.State, error) {
	cfg := g.runConfig(opts)
	st = prepare(st)

	initNode := g.InitNode()
	if initNode == nil {
		return st, nil
	}
	if b, ok := initNode.Behavior().(*Init); ok && b.RanOnce() {
		cfg.logger.Debug("graph already initialized", "graph_uid", g.UID)
		return st, nil
	}

	ctx, span := cfg.tracer.Start(ctx, "promptflow.initialize", trace.WithAttributes(
		attribute.String("graph.uid", g.UID),
		attribute.String("job.id", cfg.jobID),
	))
	defer span.End()

	q := NewWorkQueue()
	q.Push(initNode)
	g.running.Store(true)
	_, err := g.drain(ctx, q, st, cfg)
	g.running.Store(false)
	endSpan(span, err)
	return st, err
}

// drain runs the next queued node and recursively drains every branch it
// enables, one connector at a time. It reports whether the run was stopped.
func (g *Graph) drain(ctx context.Context, q *WorkQueue, st *domain.State, cfg *runConfig) (bool, error) {
	if q.Len() == 0 {
		return false, nil
	}
	if !g.running.Load() || ctx.Err() != nil {
		g.running.Store(false)
		return true, nil
	}

	n := q.Pop()
	out, stopped, err := g.step(ctx, n, st, cfg)
	if err != nil || stopped {
		return stopped, err
	}
	if out == nil {
		cfg.logger.Info("node returned no output, branch stopped", "node_uid", n.UID, "node_label", n.Label)
		return false, nil
	}

	for _, c := range g.outputsOf(n) {
		ok, err := c.Evaluate(ctx, st)
		if err != nil {
			cfg.logger.Error("condition evaluation failed", "node_label", n.Label, "connector_uid", c.UID, "err", err)
			cfg.log(ctx, n, fmt.Sprintf("Error evaluating condition %s: %v", c.Condition().Label, err))
			break
		}
		if !ok || !q.Push(c.Next) {
			continue
		}
		if stopped, err := g.drain(ctx, q, st, cfg); stopped || err != nil {
			return stopped, err
		}
	}
	return false, nil
}

type stepResult struct {
	out *string
	err error
}

// step executes one node. The behavior runs on its own goroutine against a
// scratch copy of the state, which replaces st only once the node finishes.
// A cancelled ctx abandons a node that does not return.
func (g *Graph) step(ctx context.Context, n *Node, st *domain.State, cfg *runConfig) (*string, bool, error) {
	ctx, span := cfg.tracer.Start(ctx, "promptflow.node", trace.WithAttributes(
		attribute.String("node.uid", n.UID),
		attribute.String("node.label", n.Label),
		attribute.String("node.type", n.Type()),
	))
	defer span.End()

	logger := cfg.logger.With("node_uid", n.UID, "node_label", n.Label)
	started := time.Now()
	cfg.enter(ctx, n)

	before := n.Before(ctx, st)
	if before != nil && before.NeedsInput {
		logger.Info("node requires input")
		if cfg.input == nil {
			err := Infrastructure(domain.ErrInputUnavailable)
			endSpan(span, err)
			return nil, false, err
		}
		v, err := cfg.input(ctx, n, before)
		if err != nil {
			if ctx.Err() != nil {
				return nil, true, nil
			}
			err = Infrastructure(fmt.Errorf("input for node %s: %w", n.Label, err))
			endSpan(span, err)
			return nil, false, err
		}
		before.Input = v
	}

	scratch := st.Clone()
	done := make(chan stepResult, 1)
	go func() {
		out, err := n.RunNode(ctx, before, scratch)
		done <- stepResult{out: out, err: err}
	}()

	var res stepResult
	select {
	case res = <-done:
	case <-ctx.Done():
		logger.Warn("node abandoned after cancellation")
		return nil, true, nil
	}
	if res.err != nil {
		logger.Error("node infrastructure failure", "err", res.err)
		endSpan(span, res.err)
		return nil, false, res.err
	}

	failed := scratch.Exception && !st.Exception
	*st = *scratch
	if failed {
		span.SetStatus(codes.Error, st.Result)
	}
	logger.Debug("node finished", "output", display(res.out), "duration", time.Since(started))
	cfg.leave(ctx, n, res.out, failed, time.Since(started))
	cfg.log(ctx, n, fmt.Sprintf("Node %s output: %s", n.Label, display(res.out)))
	return res.out, false, nil
}

func (c *runConfig) log(ctx context.Context, n *Node, msg string) {
	if c.logFn == nil {
		return
	}
	c.logFn(ctx, domain.LogEntry{
		JobID:     c.jobID,
		Message:   msg,
		NodeUID:   n.UID,
		NodeLabel: n.Label,
		Time:      time.Now().UTC(),
	})
}

func (c *runConfig) enter(ctx context.Context, n *Node) {
	if c.hooks.OnNodeEnter == nil {
		return
	}
	c.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeEnter, JobID: c.jobID},
		NodeUID:   n.UID,
		NodeLabel: n.Label,
		NodeType:  n.Type(),
	})
}

func (c *runConfig) leave(ctx context.Context, n *Node, out *string, failed bool, d time.Duration) {
	if c.hooks.OnNodeLeave == nil {
		return
	}
	c.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, JobID: c.jobID},
		NodeUID:   n.UID,
		NodeLabel: n.Label,
		NodeType:  n.Type(),
		Output:    out,
		Failed:    failed,
		Duration:  d,
	})
}

func prepare(st *domain.State) *domain.State {
	if st == nil {
		return domain.NewState()
	}
	return st.Normalize()
}

func display(out *string) string {
	if out == nil {
		return "<none>"
	}
	return *out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
