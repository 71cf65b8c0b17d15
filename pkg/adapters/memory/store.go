package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/google/uuid"
)

type jobRecord struct {
	job    domain.Job
	logs   []domain.LogEntry
	output []byte
}

// JobStore implements ports.JobStore in memory.
// Safe for concurrent use.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*jobRecord
	order []string
	now   func() time.Time
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*jobRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new PENDING job.
func (s *JobStore) Create(_ context.Context, graphID string, metadata map[string]any) (string, error) {
	now := s.now()
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &jobRecord{job: domain.Job{
		ID:        id,
		GraphID:   graphID,
		Status:    domain.JobPending,
		Metadata:  maps.Clone(metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.order = append(s.order, id)
	return id, nil
}

// Get returns a copy of the job record.
func (s *JobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return copyJob(rec.job), nil
}

// List returns jobs in creation order.
func (s *JobStore) List(_ context.Context, graphID string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Job{}
	for _, id := range s.order {
		rec := s.jobs[id]
		if graphID == "" || rec.job.GraphID == graphID {
			out = append(out, copyJob(rec.job))
		}
	}
	return out, nil
}

// UpdateStatus validates and applies a status change.
func (s *JobStore) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus) error {
	return s.update(jobID, func(rec *jobRecord) error {
		if err := rec.job.Status.TransitionTo(status); err != nil {
			return err
		}
		rec.job.Status = status
		return nil
	})
}

// SetTaskID records the task handle of the job.
func (s *JobStore) SetTaskID(_ context.Context, jobID, taskID string) error {
	return s.update(jobID, func(rec *jobRecord) error {
		rec.job.TaskID = taskID
		return nil
	})
}

// AppendLog adds an entry to the job log.
func (s *JobStore) AppendLog(_ context.Context, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[entry.JobID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, entry.JobID)
	}
	rec.logs = append(rec.logs, entry)
	return nil
}

// Logs returns a copy of the job log.
func (s *JobStore) Logs(_ context.Context, jobID string) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return []domain.LogEntry{}, nil
	}
	return append([]domain.LogEntry{}, rec.logs...), nil
}

// SetOutput stores a serialized copy of st.
func (s *JobStore) SetOutput(_ context.Context, jobID string, st *domain.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return s.update(jobID, func(rec *jobRecord) error {
		rec.output = raw
		return nil
	})
}

// Output decodes the stored final state.
func (s *JobStore) Output(_ context.Context, jobID string) (*domain.State, error) {
	s.mu.RLock()
	rec, ok := s.jobs[jobID]
	var raw []byte
	if ok {
		raw = rec.output
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
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

func (s *JobStore) update(jobID string, fn func(*jobRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if err := fn(rec); err != nil {
		return err
	}
	rec.job.UpdatedAt = s.now()
	return nil
}

func copyJob(j domain.Job) *domain.Job {
	j.Metadata = maps.Clone(j.Metadata)
	return &j
}
