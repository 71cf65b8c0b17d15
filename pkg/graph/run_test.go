package graph_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRun_LinearGraphTerminates(t *testing.T) {
	rec := &recorder{}
	g := graph.New("linear")
	start := mustAdd(g, "Start", graph.Start{})
	a := mustAdd(g, "A", echo(rec, "a-out"))
	b := mustAdd(g, "B", echo(rec, "b-out"))
	mustConnect(g, start, a)
	mustConnect(g, a, b)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, g.IsRunning())
	assert.Equal(t, []string{"A", "B"}, rec.labels())
	assert.Equal(t, "a-out", st.Snapshot["A"])
	assert.Equal(t, "b-out", st.Snapshot["B"])
	assert.Equal(t, "", st.Snapshot["Start"])
	assert.Equal(t, "b-out", st.Result)
	assert.False(t, st.Exception)
}

func TestRun_NoStartNode(t *testing.T) {
	g := graph.New("empty")
	_, err := g.Run(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoStartNode)
}

func TestRun_NilOutputStopsOnlyItsBranch(t *testing.T) {
	rec := &recorder{}
	g := graph.New("diamond")
	a := mustAdd(g, "A", graph.Start{})
	b := mustAdd(g, "B", stopper(rec))
	c := mustAdd(g, "C", echo(rec, "c-out"))
	d := mustAdd(g, "D", echo(rec, "d-out"))
	mustConnect(g, a, b)
	mustConnect(g, a, c)
	mustConnect(g, b, d)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, rec.labels(), "D hangs off the stopped branch")
	assert.Equal(t, "c-out", st.Snapshot["C"])
	assert.NotContains(t, st.Snapshot, "D")
	assert.False(t, g.IsRunning())
}

func TestRun_DrainsBranchBeforeSibling(t *testing.T) {
	rec := &recorder{}
	g := graph.New("diamond")
	a := mustAdd(g, "A", graph.Start{})
	b := mustAdd(g, "B", echo(rec, ""))
	c := mustAdd(g, "C", echo(rec, ""))
	d := mustAdd(g, "D", &fake{run: func(_ context.Context, n *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
		rec.add(n.Label)
		out := "after " + st.Result
		return &out, nil
	}})
	mustConnect(g, a, b)
	mustConnect(g, a, c)
	mustConnect(g, b, d)
	mustConnect(g, c, d)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D", "C", "D"}, rec.labels())
	assert.Equal(t, "after C", st.Snapshot["D"])
}

func TestWorkQueue_DedupesByIdentity(t *testing.T) {
	n := graph.NewNode("same", "X", graph.Start{})
	twin := graph.NewNode("same", "other label", graph.Start{})
	other := graph.NewNode("", "X", graph.Start{})

	q := graph.NewWorkQueue()
	assert.True(t, q.Push(n))
	assert.False(t, q.Push(n))
	assert.False(t, q.Push(twin), "equal uid is the same node")
	assert.True(t, q.Push(other), "equal label is not the same node")
	assert.Equal(t, 2, q.Len())
	assert.Same(t, n, q.Pop())
	assert.Same(t, other, q.Pop())
	assert.Nil(t, q.Pop())
}

func TestRun_ConditionRoutesByPriorOutput(t *testing.T) {
	rec := &recorder{}
	g := graph.New("branching")
	start := mustAdd(g, "Start", graph.Start{})
	classify := mustAdd(g, "Classifier", echo(rec, "yes"))
	yes := mustAdd(g, "Yes", echo(rec, ""))
	no := mustAdd(g, "No", echo(rec, ""))
	mustConnect(g, start, classify)
	mustConnectIf(g, classify, yes, "function main(state) return Classifier == 'yes' end")
	mustConnectIf(g, classify, no, "function main(state) return Classifier == 'no' end")

	_, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Classifier", "Yes"}, rec.labels())
}

func TestRun_ConditionErrorSkipsRemainingSiblings(t *testing.T) {
	rec := &recorder{}
	var logs []string
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	first := mustAdd(g, "First", echo(rec, ""))
	second := mustAdd(g, "Second", echo(rec, ""))
	third := mustAdd(g, "Third", echo(rec, ""))
	mustConnect(g, start, first)
	mustConnectIf(g, start, second, "error('broken')")
	mustConnect(g, start, third)

	_, err := g.Run(context.Background(), nil, graph.WithLogFunc(func(_ context.Context, e domain.LogEntry) {
		logs = append(logs, e.Message)
	}))
	require.NoError(t, err, "a condition failure does not fail the run")
	assert.Equal(t, []string{"First"}, rec.labels())
	assert.True(t, containsPrefix(logs, "Error evaluating condition cond.lua"))
}

func TestRun_NodeFailureBecomesResult(t *testing.T) {
	rec := &recorder{}
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	bad := mustAdd(g, "Bad", failing(errors.New("kaput")))
	after := mustAdd(g, "After", &fake{run: func(_ context.Context, n *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
		rec.add(n.Label)
		out := "saw: " + st.Result
		return &out, nil
	}})
	mustConnect(g, start, bad)
	mustConnect(g, bad, after)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, st.Exception)
	assert.Equal(t, "Error running node Bad: kaput", st.Snapshot["Bad"])
	assert.Equal(t, "saw: Error running node Bad: kaput", st.Result)
	assert.Equal(t, []string{"After"}, rec.labels())
}

func TestRun_PanicIsAbsorbed(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	p := mustAdd(g, "Panics", &fake{run: func(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
		panic("oh no")
	}})
	mustConnect(g, start, p)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Error running node Panics: panic: oh no", st.Result)
	assert.True(t, st.Exception)
}

func TestRun_InfrastructureErrorPropagates(t *testing.T) {
	rec := &recorder{}
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	bad := mustAdd(g, "Bad", failing(graph.Infrastructure(errors.New("store down"))))
	after := mustAdd(g, "After", echo(rec, ""))
	mustConnect(g, start, bad)
	mustConnect(g, bad, after)

	_, err := g.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, graph.IsInfrastructure(err))
	assert.Empty(t, rec.labels())
	assert.False(t, g.IsRunning())
}

func TestRun_InputRequest(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	ask := mustAdd(g, "Ask", &asking{fake{run: func(_ context.Context, _ *graph.Node, before *graph.BeforeResult, _ *domain.State) (*string, error) {
		out := "got " + before.Input
		return &out, nil
	}}})
	mustConnect(g, start, ask)

	var prompts []string
	st, err := g.Run(context.Background(), nil, graph.WithInputFunc(func(_ context.Context, n *graph.Node, req *graph.BeforeResult) (string, error) {
		prompts = append(prompts, n.Label+": "+req.Prompt)
		return "hello", nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "got hello", st.Result)
	assert.Equal(t, []string{"Ask: say something"}, prompts)
}

func TestRun_InputWithoutResolverIsInfrastructureFailure(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	ask := mustAdd(g, "Ask", &asking{*echo(nil, "")})
	mustConnect(g, start, ask)

	_, err := g.Run(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInputUnavailable)
	assert.True(t, graph.IsInfrastructure(err))
}

func TestRun_InputChannelFailurePropagates(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	ask := mustAdd(g, "Ask", &asking{*echo(nil, "")})
	mustConnect(g, start, ask)

	boom := errors.New("channel unavailable")
	_, err := g.Run(context.Background(), nil, graph.WithInputFunc(func(context.Context, *graph.Node, *graph.BeforeResult) (string, error) {
		return "", boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.True(t, graph.IsInfrastructure(err))
}

func TestRun_CancelWhileWaitingForInput(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	ask := mustAdd(g, "Ask", &asking{*echo(nil, "")})
	mustConnect(g, start, ask)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := g.Run(ctx, nil, graph.WithInputFunc(func(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	assert.NoError(t, err, "a stop is not a failure")
	assert.False(t, g.IsRunning())
}

func TestRun_StopBetweenNodes(t *testing.T) {
	rec := &recorder{}
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	halt := mustAdd(g, "Halt", &fake{run: func(_ context.Context, n *graph.Node, _ *graph.BeforeResult, _ *domain.State) (*string, error) {
		rec.add(n.Label)
		g.Stop()
		out := "halted"
		return &out, nil
	}})
	next := mustAdd(g, "Next", echo(rec, ""))
	sibling := mustAdd(g, "Sibling", echo(rec, ""))
	mustConnect(g, start, halt)
	mustConnect(g, halt, next)
	mustConnect(g, start, sibling)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Halt"}, rec.labels(), "the running node completes, nothing after it starts")
	assert.Equal(t, "halted", st.Snapshot["Halt"])
	assert.False(t, g.IsRunning())
}

func TestRun_CancelAbandonsHungNode(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	hung := mustAdd(g, "Hung", &fake{run: func(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
		<-release
		out := "late"
		return &out, nil
	}})
	mustConnect(g, start, hung)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	begin := time.Now()
	st, err := g.Run(ctx, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), time.Second)
	assert.NotEqual(t, "late", st.Result, "an abandoned node does not write into the state")
}

func TestInitialize_RunsOnce(t *testing.T) {
	var calls atomic.Int32
	g := graph.New("g")
	initNode := mustAdd(g, "Init", &graph.Init{})
	setup := mustAdd(g, "Setup", &fake{run: func(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
		calls.Add(1)
		out := "ready"
		return &out, nil
	}})
	mustConnect(g, initNode, setup)
	mustAdd(g, "Start", graph.Start{})

	st, err := g.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ready", st.Snapshot["Setup"])

	_, err = g.Initialize(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, g.IsRunning())
}

func TestInit_ReturnsNilAfterFirstRun(t *testing.T) {
	b := &graph.Init{}
	out, err := b.Run(context.Background(), nil, nil, domain.NewState())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "", *out)

	out, err = b.Run(context.Background(), nil, nil, domain.NewState())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, b.RanOnce())
}

func TestRun_HooksAndLogs(t *testing.T) {
	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	a := mustAdd(g, "A", echo(nil, "a-out"))
	mustConnect(g, start, a)

	var entered, left []string
	var logs []domain.LogEntry
	_, err := g.Run(context.Background(), nil,
		graph.WithJobID("job-1"),
		graph.WithHooks(domain.LifecycleHooks{
			OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeLabel) },
			OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
				left = append(left, e.NodeLabel)
				assert.Equal(t, "job-1", e.JobID)
			},
		}),
		graph.WithLogFunc(func(_ context.Context, e domain.LogEntry) { logs = append(logs, e) }),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Start", "A"}, entered)
	assert.Equal(t, []string{"Start", "A"}, left)
	require.Len(t, logs, 2)
	assert.Equal(t, "Node A output: a-out", logs[1].Message)
	assert.Equal(t, "job-1", logs[1].JobID)
	assert.Equal(t, a.UID, logs[1].NodeUID)
}

func TestRun_EmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	g := graph.New("g")
	start := mustAdd(g, "Start", graph.Start{})
	a := mustAdd(g, "A", echo(nil, ""))
	mustConnect(g, start, a)

	_, err := g.Run(context.Background(), nil, graph.WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"promptflow.node", "promptflow.node", "promptflow.run"}, names)
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
