package ports

import (
	"context"

	"github.com/aretw0/promptflow/pkg/domain"
)

// JobService is the job API driven by the HTTP, MCP and CLI adapters.
// runner.JobRunner implements it.
type JobService interface {
	// Submit creates a PENDING job for graphID and queues its execution.
	Submit(ctx context.Context, graphID string, metadata map[string]any) (string, error)

	// List returns the jobs of graphID, or all jobs when it is empty.
	List(ctx context.Context, graphID string) ([]*domain.Job, error)

	// Status returns the job record.
	Status(ctx context.Context, jobID string) (*domain.Job, error)

	// Logs returns the job log.
	Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error)

	// Output returns the final state of a finished job.
	Output(ctx context.Context, jobID string) (*domain.State, error)

	// SendInput answers the pending input request of the job.
	SendInput(ctx context.Context, jobID, value string) error

	// Stop cancels the job and marks it DONE.
	Stop(ctx context.Context, jobID string) error
}
