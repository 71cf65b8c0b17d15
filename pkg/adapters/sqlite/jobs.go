package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/google/uuid"
)

// JobStore implements ports.JobStore on SQLite.
type JobStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobStore wraps an opened database.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const jobColumns = `id, graph_id, status, task_id, metadata, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job              domain.Job
		status, metadata string
		created, updated int64
	)
	if err := row.Scan(&job.ID, &job.GraphID, &status, &job.TaskID, &metadata, &created, &updated); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
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
	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, graph_id, status, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, graphID, string(domain.JobPending), string(meta), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// Get loads a job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// List returns jobs in creation order.
func (s *JobStore) List(ctx context.Context, graphID string) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY seq`
	args := []any{}
	if graphID != "" {
		query = `SELECT ` + jobColumns + ` FROM jobs WHERE graph_id = ? ORDER BY seq`
		args = append(args, graphID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus validates the transition and applies it with a compare and
// swap on the previous status, retrying if another writer got there first.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	for {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.Status.TransitionTo(status); err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status), s.now().UnixNano(), jobID, string(job.Status))
		if err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
}

// SetTaskID records the task handle.
func (s *JobStore) SetTaskID(ctx context.Context, jobID, taskID string) error {
	return s.exec(ctx, jobID, `UPDATE jobs SET task_id = ?, updated_at = ? WHERE id = ?`, taskID, s.now().UnixNano(), jobID)
}

// AppendLog inserts a log row.
func (s *JobStore) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, message, node_uid, node_label, time) VALUES (?, ?, ?, ?, ?)`,
		entry.JobID, entry.Message, entry.NodeUID, entry.NodeLabel, entry.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Logs returns the job log in insertion order.
func (s *JobStore) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, message, node_uid, node_label, time FROM job_logs WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.LogEntry{}
	for rows.Next() {
		var (
			e  domain.LogEntry
			ts int64
		)
		if err := rows.Scan(&e.JobID, &e.Message, &e.NodeUID, &e.NodeLabel, &ts); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ts).UTC()
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// SetOutput stores the final state as JSON.
func (s *JobStore) SetOutput(ctx context.Context, jobID string, st *domain.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return s.exec(ctx, jobID, `UPDATE jobs SET output = ?, updated_at = ? WHERE id = ?`, raw, s.now().UnixNano(), jobID)
}

// Output decodes the final state.
func (s *JobStore) Output(ctx context.Context, jobID string) (*domain.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT output FROM jobs WHERE id = ?`, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return nil
}
