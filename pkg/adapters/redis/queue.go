package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets how many tasks this process runs concurrently.
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

// WithQueuePrefix sets the key prefix.
func WithQueuePrefix(prefix string) QueueOption {
	return func(q *Queue) { q.prefix = prefix }
}

// WithPollInterval sets how long a worker blocks on an empty queue and how
// often delayed retries are promoted.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// Queue implements ports.TaskQueue on Redis lists. Pending tasks live in a
// list, retries wait in a sorted set scored by due time, and revocations
// are recorded in a set and broadcast so the worker running the task can
// cancel it.
type Queue struct {
	client  *backend.Client
	prefix  string
	workers int
	policy  ports.RetryPolicy
	poll    time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	funcs   map[string]ports.TaskFunc
	running map[string]context.CancelCauseFunc
}

// NewQueue creates a queue on an existing client.
func NewQueue(client *backend.Client, opts ...QueueOption) *Queue {
	q := &Queue{
		client:  client,
		prefix:  DefaultPrefix,
		workers: 1,
		policy:  ports.DefaultRetryPolicy,
		poll:    time.Second,
		logger:  logging.NewNop(),
		funcs:   make(map[string]ports.TaskFunc),
		running: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) pendingKey() string { return q.prefix + "queue:pending" }
func (q *Queue) delayedKey() string { return q.prefix + "queue:delayed" }
func (q *Queue) tasksKey() string   { return q.prefix + "queue:tasks" }
func (q *Queue) revokedKey() string { return q.prefix + "queue:revoked" }
func (q *Queue) revokeChan() string { return q.prefix + "queue:revoke" }

// Register binds name to fn.
func (q *Queue) Register(name string, fn ports.TaskFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.funcs[name] = fn
}

// Submit pushes a first attempt of the task.
func (q *Queue) Submit(ctx context.Context, name string, args map[string]string) (string, error) {
	task := ports.Task{
		ID:          uuid.NewString(),
		Name:        name,
		Args:        maps.Clone(args),
		Attempt:     1,
		MaxAttempts: q.policy.MaxAttempts,
	}
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, q.tasksKey(), task.ID)
	pipe.LPush(ctx, q.pendingKey(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to submit task: %w", err)
	}
	return task.ID, nil
}

// Revoke marks the task revoked and tells every worker about it.
func (q *Queue) Revoke(ctx context.Context, taskID string) error {
	known, err := q.client.SIsMember(ctx, q.tasksKey(), taskID).Result()
	if err != nil {
		return fmt.Errorf("failed to look up task: %w", err)
	}
	if !known {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, q.revokedKey(), taskID)
	pipe.Publish(ctx, q.revokeChan(), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke task: %w", err)
	}
	q.cancelLocal(taskID)
	return nil
}

func (q *Queue) cancelLocal(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.running[taskID]; ok {
		cancel(domain.ErrTaskRevoked)
	}
}

// Run starts the workers, the retry promoter and the revoke listener, and
// blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	ps := q.client.Subscribe(ctx, q.revokeChan())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to revocations: %w", err)
	}
	defer ps.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.cancelLocal(msg.Payload)
			}
		}
	}()
	go func() {
		defer wg.Done()
		q.promote(ctx)
	}()
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

// promote moves due retries back to the pending list. ZREM decides which
// replica owns an entry, so each retry is pushed once.
func (q *Queue) promote(ctx context.Context) {
	ticker := time.NewTicker(q.poll / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &backend.ZRangeBy{Min: "-inf", Max: now}).Result()
		if err != nil {
			if ctx.Err() == nil {
				q.logger.Error("failed to read delayed tasks", "err", err)
			}
			continue
		}
		for _, data := range due {
			removed, err := q.client.ZRem(ctx, q.delayedKey(), data).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
				q.logger.Error("failed to promote task", "err", err)
			}
		}
	}
}

func (q *Queue) work(ctx context.Context) {
	for ctx.Err() == nil {
		// Redis blocks for whole seconds at minimum.
		vals, err := q.client.BRPop(ctx, max(q.poll, time.Second), q.pendingKey()).Result()
		if err != nil {
			if !errors.Is(err, backend.Nil) && ctx.Err() == nil {
				q.logger.Error("failed to pop task", "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(q.poll):
				}
			}
			continue
		}
		var task ports.Task
		if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
			q.logger.Error("dropping malformed task", "err", err)
			continue
		}
		q.execute(ctx, task)
	}
}

func (q *Queue) revoked(ctx context.Context, taskID string) bool {
	ok, err := q.client.SIsMember(ctx, q.revokedKey(), taskID).Result()
	return err == nil && ok
}

func (q *Queue) execute(ctx context.Context, task ports.Task) {
	logger := q.logger.With("task_id", task.ID, "task", task.Name, "attempt", task.Attempt)
	if q.revoked(ctx, task.ID) {
		logger.Info("skipping revoked task")
		return
	}

	q.mu.Lock()
	fn, ok := q.funcs[task.Name]
	taskCtx, cancel := context.WithCancelCause(ctx)
	q.running[task.ID] = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.running, task.ID)
		q.mu.Unlock()
		cancel(nil)
	}()

	if !ok {
		logger.Error("no function registered for task")
		return
	}
	// A revoke published between the check above and registration.
	if q.revoked(ctx, task.ID) {
		return
	}

	err := runTask(taskCtx, fn, task)
	if err == nil || ctx.Err() != nil || q.revoked(ctx, task.ID) {
		return
	}
	if task.Final() {
		logger.Error("task failed, retries exhausted", "err", err)
		return
	}

	delay := q.policy.Delay(task.Attempt)
	logger.Warn("task failed, retrying", "err", err, "delay", delay)
	task.Attempt++
	data, err := json.Marshal(task)
	if err != nil {
		logger.Error("failed to marshal retry", "err", err)
		return
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), backend.Z{Score: due, Member: data}).Err(); err != nil {
		logger.Error("failed to schedule retry", "err", err)
	}
}

func runTask(ctx context.Context, fn ports.TaskFunc, task ports.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, task)
}
