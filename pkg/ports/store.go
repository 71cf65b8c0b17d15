package ports

import (
	"context"

	"github.com/aretw0/promptflow/pkg/domain"
)

// JobStore persists job records. Status changes must respect
// domain.JobStatus.CanTransition and fail with domain.ErrInvalidTransition
// otherwise.
type JobStore interface {
	// Create stores a PENDING job for graphID and returns its id.
	Create(ctx context.Context, graphID string, metadata map[string]any) (string, error)

	// Get returns the job. Returns domain.ErrJobNotFound if it does not exist.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// List returns the jobs of graphID, or every job when graphID is empty,
	// oldest first.
	List(ctx context.Context, graphID string) ([]*domain.Job, error)

	// UpdateStatus moves the job to status.
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error

	// SetTaskID records the queue handle executing the job.
	SetTaskID(ctx context.Context, jobID, taskID string) error

	// AppendLog adds an entry to the job log.
	AppendLog(ctx context.Context, entry domain.LogEntry) error

	// Logs returns the job log in append order.
	Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error)

	// SetOutput stores the final state of the job.
	SetOutput(ctx context.Context, jobID string, st *domain.State) error

	// Output returns the final state. Returns domain.ErrNoOutput before SetOutput.
	Output(ctx context.Context, jobID string) (*domain.State, error)
}
