package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStore implements ports.JobStore on PostgreSQL.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore wraps a connected pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `id, graph_id, status, task_id, metadata, created_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job      domain.Job
		status   string
		metadata []byte
	)
	if err := row.Scan(&job.ID, &job.GraphID, &status, &job.TaskID, &metadata, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode job metadata: %w", err)
	}
	return &job, nil
}

// Create inserts a PENDING job.
func (s *JobStore) Create(ctx context.Context, graphID string, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode job metadata: %w", err)
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, graph_id, status, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4, now(), now())`,
		id, graphID, string(domain.JobPending), meta)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// Get loads a job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// List returns jobs in creation order.
func (s *JobStore) List(ctx context.Context, graphID string) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE $1::text = '' OR graph_id = $1 ORDER BY seq`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus validates the transition inside a row-locked transaction.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		if err != nil {
			return fmt.Errorf("failed to load job status: %w", err)
		}
		if err := domain.JobStatus(current).TransitionTo(status); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`, string(status), jobID); err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		return nil
	})
}

// SetTaskID records the task handle.
func (s *JobStore) SetTaskID(ctx context.Context, jobID, taskID string) error {
	return s.exec(ctx, jobID, `UPDATE jobs SET task_id = $1, updated_at = now() WHERE id = $2`, taskID, jobID)
}

// AppendLog inserts a log row.
func (s *JobStore) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_logs (job_id, message, node_uid, node_label, time) VALUES ($1, $2, $3, $4, $5)`,
		entry.JobID, entry.Message, entry.NodeUID, entry.NodeLabel, entry.Time)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Logs returns the job log in insertion order.
func (s *JobStore) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, message, node_uid, node_label, time FROM job_logs WHERE job_id = $1 ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LogEntry, error) {
		var e domain.LogEntry
		err := row.Scan(&e.JobID, &e.Message, &e.NodeUID, &e.NodeLabel, &e.Time)
		e.Time = e.Time.UTC()
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	return logs, nil
}

// SetOutput stores the final state as JSON.
func (s *JobStore) SetOutput(ctx context.Context, jobID string, st *domain.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return s.exec(ctx, jobID, `UPDATE jobs SET output = $1, updated_at = now() WHERE id = $2`, raw, jobID)
}

// Output decodes the final state.
func (s *JobStore) Output(ctx context.Context, jobID string) (*domain.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT output FROM jobs WHERE id = $1`, jobID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrNoOutput
	}
	st := &domain.State{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return st.Normalize(), nil
}

func (s *JobStore) exec(ctx context.Context, jobID, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return nil
}
