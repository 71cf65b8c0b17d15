package runner_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/aretw0/promptflow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// explode fails every run with an infrastructure error.
type explode struct{ calls *atomic.Int32 }

func (explode) Type() string                    { return "Explode" }
func (explode) Options() map[string]any         { return map[string]any{} }
func (explode) SetOptions(map[string]any) error { return nil }
func (e explode) Run(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
	e.calls.Add(1)
	return nil, graph.Infrastructure(errors.New("database unreachable"))
}

// revokeRecorder records the task ids revoked through the queue.
type revokeRecorder struct {
	ports.TaskQueue

	mu      sync.Mutex
	revoked []string
}

func (q *revokeRecorder) Revoke(ctx context.Context, taskID string) error {
	q.mu.Lock()
	q.revoked = append(q.revoked, taskID)
	q.mu.Unlock()
	return q.TaskQueue.Revoke(ctx, taskID)
}

func (q *revokeRecorder) Revoked() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.revoked...)
}

type env struct {
	runner *runner.JobRunner
	queue  *revokeRecorder
	graphs *memory.GraphStore
	jobs   *memory.JobStore
	reg    *nodes.Registry
	calls  *atomic.Int32

	mu       sync.Mutex
	statuses map[string][]domain.JobStatus
}

func setup(t *testing.T, opts ...runner.Option) *env {
	t.Helper()
	e := &env{
		graphs:   memory.NewGraphStore(),
		jobs:     memory.NewJobStore(),
		reg:      nodes.Default(nil),
		calls:    &atomic.Int32{},
		statuses: map[string][]domain.JobStatus{},
	}
	e.reg.Register("Explode", func(*nodes.Services) graph.Behavior { return explode{calls: e.calls} })

	queue := memory.NewQueue(
		memory.WithWorkers(2),
		memory.WithRetryPolicy(ports.RetryPolicy{MaxAttempts: 2, Backoff: 10 * time.Millisecond}),
	)
	e.queue = &revokeRecorder{TaskQueue: queue}
	hooks := domain.LifecycleHooks{OnJobStatus: func(_ context.Context, ev *domain.JobEvent) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.statuses[ev.JobID] = append(e.statuses[ev.JobID], ev.Status)
	}}
	opts = append([]runner.Option{runner.WithHooks(hooks)}, opts...)
	e.runner = runner.New(runner.Deps{
		Graphs:  e.graphs,
		Jobs:    e.jobs,
		Queue:   e.queue,
		Inputs:  memory.NewBroker(),
		Factory: e.reg,
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func (e *env) history(jobID string) []domain.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.JobStatus(nil), e.statuses[jobID]...)
}

func (e *env) save(t *testing.T, g *graph.Graph) string {
	t.Helper()
	require.NoError(t, e.graphs.Save(context.Background(), g.Document()))
	return g.UID
}

// askGraph is Start -> Question (input) -> Echo ("you said {state}").
func (e *env) askGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("ask", graph.WithFactory(e.reg))
	start, err := g.AddNode("Start", graph.Start{})
	require.NoError(t, err)
	q, err := g.AddNode("Question", nodes.NewInputNode())
	require.NoError(t, err)
	prompt := nodes.NewPromptNode()
	require.NoError(t, prompt.SetOptions(map[string]any{"prompt": map[string]any{"text": "you said {state}"}}))
	echo, err := g.AddNode("Echo", prompt)
	require.NoError(t, err)

	_, err = g.Connect(start.UID, q.UID, graph.Condition{})
	require.NoError(t, err)
	_, err = g.Connect(q.UID, echo.UID, graph.Condition{})
	require.NoError(t, err)
	return g
}

func waitStatus(t *testing.T, r *runner.JobRunner, jobID string, want domain.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := r.Status(context.Background(), jobID)
		return err == nil && job.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job never reached %s", want)
}

func TestJobRunner_InputLifecycle(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	gid := e.save(t, e.askGraph(t))

	jobID, err := e.runner.Submit(ctx, gid, map[string]any{"source": "test"})
	require.NoError(t, err)

	waitStatus(t, e.runner, jobID, domain.JobInputRequired)
	require.NoError(t, e.runner.SendInput(ctx, jobID, "hello\x07"))
	waitStatus(t, e.runner, jobID, domain.JobDone)

	out, err := e.runner.Output(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "you said hello", out.Result)
	assert.Equal(t, "hello", out.Snapshot["Question"])

	logs, err := e.runner.Logs(ctx, jobID)
	require.NoError(t, err)
	var messages []string
	for _, l := range logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "Node Echo output: you said hello")

	job, err := e.runner.Status(ctx, jobID)
	require.NoError(t, err)
	assert.NotEmpty(t, job.TaskID)
	assert.Equal(t, "test", job.Metadata["source"])

	assert.Equal(t, []domain.JobStatus{
		domain.JobPending,
		domain.JobRunning,
		domain.JobInputRequired,
		domain.JobRunning,
		domain.JobDone,
	}, e.history(jobID))
}

func TestJobRunner_StopForcesDone(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	gid := e.save(t, e.askGraph(t))

	jobID, err := e.runner.Submit(ctx, gid, nil)
	require.NoError(t, err)
	waitStatus(t, e.runner, jobID, domain.JobInputRequired)

	require.NoError(t, e.runner.Stop(ctx, jobID))
	job, err := e.runner.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, job.Status)
	require.NotEmpty(t, job.TaskID)
	assert.Equal(t, []string{job.TaskID}, e.queue.Revoked(), "the task handle is revoked")

	// The abandoned traversal still stores the state it reached.
	require.Eventually(t, func() bool {
		_, err := e.runner.Output(ctx, jobID)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	out, err := e.runner.Output(ctx, jobID)
	require.NoError(t, err)
	assert.NotContains(t, out.Snapshot, "Echo")

	assert.ErrorIs(t, e.runner.SendInput(ctx, jobID, "late"), domain.ErrNotAwaitingInput)
	assert.NoError(t, e.runner.Stop(ctx, jobID), "stopping twice is fine")
	assert.Len(t, e.queue.Revoked(), 1, "a finished job is not revoked again")
}

func TestJobRunner_FailsWhenRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	g := graph.New("explodes", graph.WithFactory(e.reg))
	start, err := g.AddNode("Start", graph.Start{})
	require.NoError(t, err)
	boom, err := g.AddNode("Boom", explode{calls: e.calls})
	require.NoError(t, err)
	_, err = g.Connect(start.UID, boom.UID, graph.Condition{})
	require.NoError(t, err)
	gid := e.save(t, g)

	jobID, err := e.runner.Submit(ctx, gid, nil)
	require.NoError(t, err)
	waitStatus(t, e.runner, jobID, domain.JobFailed)
	assert.Equal(t, int32(2), e.calls.Load())
}

func TestJobRunner_StructuralFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	g := graph.New("headless", graph.WithFactory(e.reg))
	_, err := g.AddNode("Boom", explode{calls: e.calls})
	require.NoError(t, err)
	gid := e.save(t, g)

	jobID, err := e.runner.Submit(ctx, gid, nil)
	require.NoError(t, err)
	waitStatus(t, e.runner, jobID, domain.JobFailed)
	assert.Zero(t, e.calls.Load())
}

func TestJobRunner_SubmitUnknownGraph(t *testing.T) {
	e := setup(t)
	_, err := e.runner.Submit(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)
}

func TestJobRunner_SendInputValidation(t *testing.T) {
	ctx := context.Background()
	e := setup(t, runner.WithMaxInputSize(4))
	gid := e.save(t, e.askGraph(t))

	jobID, err := e.runner.Submit(ctx, gid, nil)
	require.NoError(t, err)
	waitStatus(t, e.runner, jobID, domain.JobInputRequired)

	assert.ErrorIs(t, e.runner.SendInput(ctx, jobID, "12345"), runner.ErrInputTooLarge)
	assert.ErrorIs(t, e.runner.SendInput(ctx, "missing", "hi"), domain.ErrJobNotFound)
	require.NoError(t, e.runner.SendInput(ctx, jobID, "1234"))
	waitStatus(t, e.runner, jobID, domain.JobDone)
}

func TestJobRunner_RunLocal(t *testing.T) {
	e := setup(t)
	g := e.askGraph(t)

	var prompts bytes.Buffer
	input := runner.NewTextInput(strings.NewReader("world\n"), &prompts, nil)

	st, err := e.runner.RunLocal(context.Background(), g, nil, input.Input)
	require.NoError(t, err)
	assert.Equal(t, "you said world", st.Result)
	assert.Equal(t, "Question\n> ", prompts.String())
	assert.False(t, g.IsRunning())
}

func TestJobRunner_RunLocalWithoutInputFails(t *testing.T) {
	e := setup(t)
	_, err := e.runner.RunLocal(context.Background(), e.askGraph(t), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInputUnavailable)
	assert.True(t, graph.IsInfrastructure(err))
}
