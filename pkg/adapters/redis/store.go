package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// JobStore implements ports.JobStore using Redis. Jobs are JSON strings,
// logs are lists and outputs are compressed msgpack blobs. A sorted set
// scored by creation time indexes all jobs and one more indexes each graph.
type JobStore struct {
	client *backend.Client
	opts   options
}

// NewJobStore creates a job store on an existing client.
func NewJobStore(client *backend.Client, opts ...Option) *JobStore {
	return &JobStore{client: client, opts: newOptions(opts)}
}

func (s *JobStore) jobKey(id string) string      { return s.opts.prefix + "job:" + id }
func (s *JobStore) logKey(id string) string      { return s.opts.prefix + "job:" + id + ":logs" }
func (s *JobStore) outputKey(id string) string   { return s.opts.prefix + "job:" + id + ":output" }
func (s *JobStore) indexKey() string             { return s.opts.prefix + "jobs" }
func (s *JobStore) graphKey(graph string) string { return s.opts.prefix + "graph:" + graph + ":jobs" }

// Create stores a PENDING job.
func (s *JobStore) Create(ctx context.Context, graphID string, metadata map[string]any) (string, error) {
	now := time.Now().UTC()
	job := domain.Job{
		ID:        uuid.NewString(),
		GraphID:   graphID,
		Status:    domain.JobPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	score := float64(now.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, s.opts.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: job.ID})
	pipe.ZAdd(ctx, s.graphKey(graphID), backend.Z{Score: score, Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to save job to redis: %w", err)
	}
	return job.ID, nil
}

// Get loads a job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.get(ctx, s.client, jobID)
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (s *JobStore) get(ctx context.Context, c getter, jobID string) (*domain.Job, error) {
	val, err := c.Get(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job from redis: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// List returns jobs oldest first. Index entries whose record expired are
// pruned lazily.
func (s *JobStore) List(ctx context.Context, graphID string) ([]*domain.Job, error) {
	index := s.indexKey()
	if graphID != "" {
		index = s.graphKey(graphID)
	}
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrJobNotFound) {
			s.client.ZRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpdateStatus applies a validated transition under WATCH so concurrent
// writers cannot skip the check.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	return s.update(ctx, jobID, func(job *domain.Job) error {
		if err := job.Status.TransitionTo(status); err != nil {
			return err
		}
		job.Status = status
		return nil
	})
}

// SetTaskID records the queue handle of the job.
func (s *JobStore) SetTaskID(ctx context.Context, jobID, taskID string) error {
	return s.update(ctx, jobID, func(job *domain.Job) error {
		job.TaskID = taskID
		return nil
	})
}

func (s *JobStore) update(ctx context.Context, jobID string, fn func(*domain.Job) error) error {
	key := s.jobKey(jobID)
	return s.client.Watch(ctx, func(tx *backend.Tx) error {
		job, err := s.get(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, backend.KeepTTL)
			return nil
		})
		return err
	}, key)
}

// AppendLog pushes an entry onto the job log.
func (s *JobStore) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.logKey(entry.JobID), data)
	if s.opts.ttl > 0 {
		pipe.Expire(ctx, s.logKey(entry.JobID), s.opts.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// Logs returns the job log.
func (s *JobStore) Logs(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	vals, err := s.client.LRange(ctx, s.logKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	logs := make([]domain.LogEntry, 0, len(vals))
	for _, v := range vals {
		var entry domain.LogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// SetOutput stores the final state.
func (s *JobStore) SetOutput(ctx context.Context, jobID string, st *domain.State) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.outputKey(jobID), data, s.opts.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	return nil
}

// Output loads the final state.
func (s *JobStore) Output(ctx context.Context, jobID string) (*domain.State, error) {
	data, err := s.client.Get(ctx, s.outputKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrNoOutput
		}
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	return decodeState(data)
}

// Close closes the redis client.
func (s *JobStore) Close() error {
	return s.client.Close()
}
