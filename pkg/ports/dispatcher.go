package ports

import (
	"context"
	"time"
)

// Task is one unit of queued work.
type Task struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Args        map[string]string `json:"args"`
	Attempt     int               `json:"attempt"`
	MaxAttempts int               `json:"max_attempts"`
}

// Final reports whether a failure of this attempt exhausts the retries.
func (t Task) Final() bool {
	return t.MaxAttempts > 0 && t.Attempt >= t.MaxAttempts
}

// TaskFunc executes a task. A returned error schedules a retry unless the
// attempt was final or the task was revoked.
type TaskFunc func(ctx context.Context, task Task) error

// RetryPolicy bounds re-execution of failing tasks. The delay before
// attempt n+1 is Backoff * 2^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Delay returns the wait before retrying after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff << (attempt - 1)
}

// DefaultRetryPolicy retries three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

// TaskQueue decouples job execution from the request that submitted it.
type TaskQueue interface {
	// Register binds a task name to its function. Must be called before Run.
	Register(name string, fn TaskFunc)

	// Submit enqueues a task and returns its handle.
	Submit(ctx context.Context, name string, args map[string]string) (string, error)

	// Revoke cancels a queued or running task. A running task sees its
	// context cancelled with domain.ErrTaskRevoked as cause.
	Revoke(ctx context.Context, taskID string) error

	// Run processes tasks until ctx is done.
	Run(ctx context.Context) error
}
