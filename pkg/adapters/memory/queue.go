package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/google/uuid"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("task queue is full")

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets how many tasks run concurrently.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryPolicy overrides ports.DefaultRetryPolicy.
func WithRetryPolicy(p ports.RetryPolicy) QueueOption {
	return func(q *Queue) { q.policy = p }
}

// WithQueueLogger sets the logger used for task failures.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithCapacity bounds the number of queued tasks.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// Queue implements ports.TaskQueue with goroutine workers in this process.
type Queue struct {
	workers  int
	capacity int
	policy   ports.RetryPolicy
	logger   *slog.Logger

	once    sync.Once
	pending chan ports.Task

	mu      sync.Mutex
	funcs   map[string]ports.TaskFunc
	known   map[string]bool
	revoked map[string]bool
	running map[string]context.CancelCauseFunc
}

// NewQueue creates a queue with one worker by default.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		workers:  1,
		capacity: 1024,
		policy:   ports.DefaultRetryPolicy,
		logger:   logging.NewNop(),
		funcs:    make(map[string]ports.TaskFunc),
		known:    make(map[string]bool),
		revoked:  make(map[string]bool),
		running:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) backlog() chan ports.Task {
	q.once.Do(func() { q.pending = make(chan ports.Task, q.capacity) })
	return q.pending
}

// Register binds name to fn.
func (q *Queue) Register(name string, fn ports.TaskFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.funcs[name] = fn
}

// Submit enqueues a first attempt of the task.
func (q *Queue) Submit(_ context.Context, name string, args map[string]string) (string, error) {
	task := ports.Task{
		ID:          uuid.NewString(),
		Name:        name,
		Args:        maps.Clone(args),
		Attempt:     1,
		MaxAttempts: q.policy.MaxAttempts,
	}
	q.mu.Lock()
	q.known[task.ID] = true
	q.mu.Unlock()

	select {
	case q.backlog() <- task:
		return task.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Revoke drops a queued task or cancels a running one.
func (q *Queue) Revoke(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.known[taskID] {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	q.revoked[taskID] = true
	if cancel, ok := q.running[taskID]; ok {
		cancel(domain.ErrTaskRevoked)
	}
	return nil
}

// Run starts the workers and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range q.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) work(ctx context.Context) {
	backlog := q.backlog()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-backlog:
			q.execute(ctx, task)
		}
	}
}

func (q *Queue) execute(ctx context.Context, task ports.Task) {
	q.mu.Lock()
	fn, ok := q.funcs[task.Name]
	if q.revoked[task.ID] {
		q.mu.Unlock()
		return
	}
	taskCtx, cancel := context.WithCancelCause(ctx)
	q.running[task.ID] = cancel
	q.mu.Unlock()
	defer cancel(nil)

	logger := q.logger.With("task_id", task.ID, "task", task.Name, "attempt", task.Attempt)
	if !ok {
		logger.Error("no function registered for task")
		q.finish(task.ID)
		return
	}

	err := runTask(taskCtx, fn, task)
	revoked := q.finish(task.ID)
	if err == nil || revoked || ctx.Err() != nil {
		return
	}
	if task.Final() {
		logger.Error("task failed, retries exhausted", "err", err)
		return
	}

	delay := q.policy.Delay(task.Attempt)
	logger.Warn("task failed, retrying", "err", err, "delay", delay)
	task.Attempt++
	time.AfterFunc(delay, func() {
		select {
		case q.backlog() <- task:
		default:
			q.logger.Error("dropping retry, queue is full", "task_id", task.ID)
		}
	})
}

// finish forgets the running task and reports whether it was revoked.
func (q *Queue) finish(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, taskID)
	return q.revoked[taskID]
}

func runTask(ctx context.Context, fn ports.TaskFunc, task ports.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, task)
}
