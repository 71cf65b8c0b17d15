package graph_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
)

// recorder collects node labels in execution order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, label)
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type runFunc func(ctx context.Context, n *graph.Node, before *graph.BeforeResult, st *domain.State) (*string, error)

// fake is a configurable behavior for engine tests.
type fake struct {
	kind string
	run  runFunc
	cost float64
	opts map[string]any
}

func (f *fake) Type() string {
	if f.kind == "" {
		return "Fake"
	}
	return f.kind
}

func (f *fake) Options() map[string]any {
	if f.opts == nil {
		return map[string]any{}
	}
	return f.opts
}

func (f *fake) SetOptions(opts map[string]any) error {
	f.opts = opts
	return nil
}

func (f *fake) Run(ctx context.Context, n *graph.Node, before *graph.BeforeResult, st *domain.State) (*string, error) {
	return f.run(ctx, n, before, st)
}

func (f *fake) Cost(_ *graph.Node, _ *domain.State) (float64, error) {
	return f.cost, nil
}

// asking requests input before running and echoes it.
type asking struct{ fake }

func (a *asking) Before(context.Context, *graph.Node, *domain.State) *graph.BeforeResult {
	return &graph.BeforeResult{NeedsInput: true, Prompt: "say something"}
}

func echo(rec *recorder, text string) *fake {
	return &fake{run: func(_ context.Context, n *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
		if rec != nil {
			rec.add(n.Label)
		}
		out := text
		if out == "" {
			out = n.Label
		}
		return &out, nil
	}}
}

func stopper(rec *recorder) *fake {
	return &fake{run: func(_ context.Context, n *graph.Node, _ *graph.BeforeResult, _ *domain.State) (*string, error) {
		rec.add(n.Label)
		return nil, nil
	}}
}

func failing(err error) *fake {
	return &fake{run: func(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
		return nil, err
	}}
}

// factory builds fakes and the engine's own behaviors by type name.
type factory struct{}

func (factory) New(nodeType string, opts map[string]any) (graph.Behavior, error) {
	switch nodeType {
	case graph.TypeStart:
		return graph.Start{}, nil
	case graph.TypeInit:
		return &graph.Init{}, nil
	case "Fake":
		f := echo(nil, "")
		_ = f.SetOptions(opts)
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNodeType, nodeType)
}

func mustAdd(g *graph.Graph, label string, b graph.Behavior) *graph.Node {
	n, err := g.AddNode(label, b)
	if err != nil {
		panic(err)
	}
	return n
}

func mustConnect(g *graph.Graph, a, b *graph.Node) *graph.Connector {
	c, err := g.Connect(a.UID, b.UID, graph.Condition{})
	if err != nil {
		panic(err)
	}
	return c
}

func mustConnectIf(g *graph.Graph, a, b *graph.Node, text string) *graph.Connector {
	c, err := g.Connect(a.UID, b.UID, graph.Condition{Label: "cond.lua", Text: text})
	if err != nil {
		panic(err)
	}
	return c
}
