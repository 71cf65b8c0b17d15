package ports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractDocument(uid, label string) *domain.GraphDocument {
	return &domain.GraphDocument{
		UID:     uid,
		Label:   label,
		Created: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Nodes: []domain.NodeDocument{
			{"uid": uid + "-start", "label": "Start", "node_type": "StartNode"},
			{"uid": uid + "-prompt", "label": "Prompt", "node_type": "PromptNode",
				"prompt": map[string]any{"label": "Prompt", "text": "hi {state}"}},
		},
		Branches: []domain.BranchDocument{
			{UID: uid + "-b", Label: "Untitled.lua", Conditional: "", Prev: uid + "-start", Next: uid + "-prompt"},
		},
	}
}

// RunGraphStoreContract verifies that a GraphStore implementation adheres
// to the interface contract.
func RunGraphStoreContract(t *testing.T, store GraphStore) {
	ctx := context.Background()
	uid := "contract-" + uuid.NewString()

	t.Run("Save and Load", func(t *testing.T) {
		doc := contractDocument(uid, "first")
		require.NoError(t, store.Save(ctx, doc))

		loaded, err := store.Load(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, doc.UID, loaded.UID)
		assert.Equal(t, "first", loaded.Label)
		assert.True(t, doc.Created.Equal(loaded.Created))
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, "PromptNode", loaded.Nodes[1].Type())
		prompt, ok := loaded.Nodes[1].Options()["prompt"].(map[string]any)
		require.True(t, ok, "nested options load as map[string]any, got %T", loaded.Nodes[1].Options()["prompt"])
		assert.Equal(t, "hi {state}", prompt["text"])
		assert.Equal(t, doc.Branches, loaded.Branches)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		doc := contractDocument(uid, "second")
		doc.Nodes = doc.Nodes[:1]
		doc.Branches = nil
		require.NoError(t, store.Save(ctx, doc))

		loaded, err := store.Load(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.Label)
		assert.Len(t, loaded.Nodes, 1)
		assert.Empty(t, loaded.Branches)
	})

	t.Run("List", func(t *testing.T) {
		other := uid + "-other"
		require.NoError(t, store.Save(ctx, contractDocument(other, "other")))
		defer func() { _ = store.Delete(ctx, other) }()

		list, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, list, domain.GraphSummary{UID: uid, Label: "second"})
		assert.Contains(t, list, domain.GraphSummary{UID: other, Label: "other"})
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+uid)
		assert.ErrorIs(t, err, domain.ErrGraphNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, uid))
		_, err := store.Load(ctx, uid)
		assert.ErrorIs(t, err, domain.ErrGraphNotFound)
		assert.NoError(t, store.Delete(ctx, uid), "deleting twice is fine")
	})

	t.Run("ResolveNodeTypeID", func(t *testing.T) {
		name := "ContractNode-" + uid
		id, err := store.ResolveNodeTypeID(ctx, name)
		require.NoError(t, err)
		assert.Positive(t, id)

		again, err := store.ResolveNodeTypeID(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		other, err := store.ResolveNodeTypeID(ctx, name+"-2")
		require.NoError(t, err)
		assert.NotEqual(t, id, other)
	})
}

// RunJobStoreContract verifies that a JobStore implementation adheres to
// the interface contract.
func RunJobStoreContract(t *testing.T, store JobStore) {
	ctx := context.Background()
	graphID := "graph-" + uuid.NewString()

	id, err := store.Create(ctx, graphID, map[string]any{"source": "contract"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	t.Run("Create", func(t *testing.T) {
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, graphID, job.GraphID)
		assert.Equal(t, domain.JobPending, job.Status)
		assert.Equal(t, "contract", job.Metadata["source"])
		assert.False(t, job.CreatedAt.IsZero())
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+id)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("Status Transitions", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, id, domain.JobRunning))
		require.NoError(t, store.UpdateStatus(ctx, id, domain.JobInputRequired))
		require.NoError(t, store.UpdateStatus(ctx, id, domain.JobRunning))

		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobRunning, job.Status)
		assert.False(t, job.UpdatedAt.Before(job.CreatedAt))

		err = store.UpdateStatus(ctx, id, domain.JobPending)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		assert.ErrorIs(t, store.UpdateStatus(ctx, "missing-"+id, domain.JobRunning), domain.ErrJobNotFound)
	})

	t.Run("TaskID", func(t *testing.T) {
		require.NoError(t, store.SetTaskID(ctx, id, "task-1"))
		job, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "task-1", job.TaskID)
	})

	t.Run("Logs", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		for _, msg := range []string{"one", "two", "three"} {
			require.NoError(t, store.AppendLog(ctx, domain.LogEntry{
				JobID: id, Message: msg, NodeUID: "n", NodeLabel: "N", Time: now,
			}))
		}
		logs, err := store.Logs(ctx, id)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "one", logs[0].Message)
		assert.Equal(t, "three", logs[2].Message)
		assert.Equal(t, "N", logs[1].NodeLabel)
		assert.True(t, now.Equal(logs[0].Time))

		empty, err := store.Logs(ctx, "missing-"+id)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Output", func(t *testing.T) {
		_, err := store.Output(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNoOutput)

		st := domain.NewState()
		st.Result = "done"
		st.Snapshot["Prompt"] = "hi"
		st.History = append(st.History, domain.Message{Role: "user", Content: "hi"})
		require.NoError(t, store.SetOutput(ctx, id, st))

		out, err := store.Output(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "done", out.Result)
		assert.Equal(t, "hi", out.Snapshot["Prompt"])
		assert.Equal(t, st.History, out.History)
	})

	t.Run("List", func(t *testing.T) {
		second, err := store.Create(ctx, graphID, nil)
		require.NoError(t, err)
		_, err = store.Create(ctx, graphID+"-other", nil)
		require.NoError(t, err)

		jobs, err := store.List(ctx, graphID)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, second, jobs[1].ID)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 3)
	})

	t.Run("Terminal", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, id, domain.JobDone))
		assert.ErrorIs(t, store.UpdateStatus(ctx, id, domain.JobRunning), domain.ErrInvalidTransition)
		assert.NoError(t, store.UpdateStatus(ctx, id, domain.JobDone), "forcing DONE twice is fine")
	})
}

// RunInputChannelContract verifies that an InputChannel implementation
// adheres to the interface contract.
func RunInputChannelContract(t *testing.T, ch InputChannel) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := InputKey("contract-" + uuid.NewString())

	t.Run("AwaitFirst", func(t *testing.T) {
		got := make(chan string, 1)
		errs := make(chan error, 1)
		ready := make(chan struct{})
		go func() {
			v, err := AwaitFirst(ctx, ch, key, func(context.Context) error {
				close(ready)
				return nil
			})
			if err != nil {
				errs <- err
				return
			}
			got <- v
		}()

		<-ready
		require.NoError(t, ch.Publish(ctx, key, "hello"))
		select {
		case v := <-got:
			assert.Equal(t, "hello", v)
		case err := <-errs:
			t.Fatalf("await failed: %v", err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for input")
		}
	})

	t.Run("Keys Are Isolated", func(t *testing.T) {
		sub, err := ch.Subscribe(ctx, key)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, ch.Publish(ctx, key+"-other", "wrong"))
		require.NoError(t, ch.Publish(ctx, key, "right"))

		v, err := sub.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "right", v)
	})

	t.Run("Await Honours Cancellation", func(t *testing.T) {
		sub, err := ch.Subscribe(ctx, key)
		require.NoError(t, err)
		defer sub.Close()

		short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
		defer stop()
		_, err = sub.Await(short)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Ready Failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := AwaitFirst(ctx, ch, key, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

// RunTaskQueueContract verifies that a TaskQueue implementation adheres to
// the interface contract. The queue must be built with at least three
// attempts and a short backoff.
func RunTaskQueueContract(t *testing.T, q TaskQueue) {
	var (
		mu       sync.Mutex
		received []Task
		flaky    atomic.Int32
	)
	done := make(chan string, 16)
	started := make(chan string, 16)

	q.Register("record", func(_ context.Context, task Task) error {
		mu.Lock()
		received = append(received, task)
		mu.Unlock()
		done <- task.ID
		return nil
	})
	q.Register("flaky", func(_ context.Context, task Task) error {
		if flaky.Add(1) < 2 {
			return errors.New("transient")
		}
		done <- task.ID
		return nil
	})
	q.Register("block", func(ctx context.Context, task Task) error {
		started <- task.ID
		<-ctx.Done()
		if errors.Is(context.Cause(ctx), domain.ErrTaskRevoked) {
			done <- task.ID
		}
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	wait := func(t *testing.T, ch chan string, want string) {
		t.Helper()
		for {
			select {
			case id := <-ch:
				if id == want {
					return
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for task %s", want)
			}
		}
	}

	t.Run("Submit", func(t *testing.T) {
		id, err := q.Submit(ctx, "record", map[string]string{"job_id": "j1"})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		wait(t, done, id)

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, received)
		last := received[len(received)-1]
		assert.Equal(t, "record", last.Name)
		assert.Equal(t, "j1", last.Args["job_id"])
		assert.Equal(t, 1, last.Attempt)
	})

	t.Run("Retry", func(t *testing.T) {
		id, err := q.Submit(ctx, "flaky", nil)
		require.NoError(t, err)
		wait(t, done, id)
		assert.Equal(t, int32(2), flaky.Load())
	})

	t.Run("Revoke Running", func(t *testing.T) {
		id, err := q.Submit(ctx, "block", nil)
		require.NoError(t, err)
		wait(t, started, id)
		require.NoError(t, q.Revoke(ctx, id))
		wait(t, done, id)
	})
}

// RunLockerContract verifies that a DistributedLocker implementation
// adheres to the interface contract.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()
	key := "contract-" + uuid.NewString()

	t.Run("Exclusive", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)

		short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(short, key, 5*time.Second)
		assert.Error(t, err, "second holder must wait")

		require.NoError(t, unlock(ctx))
		unlock2, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock2(ctx))
	})

	t.Run("Independent Keys", func(t *testing.T) {
		a, err := locker.Lock(ctx, key+"-a", time.Second)
		require.NoError(t, err)
		b, err := locker.Lock(ctx, key+"-b", time.Second)
		require.NoError(t, err)
		require.NoError(t, b(ctx))
		require.NoError(t, a(ctx))
	})
}
