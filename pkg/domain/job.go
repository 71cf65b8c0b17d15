package domain

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	JobPending       JobStatus = "PENDING"
	JobRunning       JobStatus = "RUNNING"
	JobInputRequired JobStatus = "INPUT_REQUIRED"
	JobDone          JobStatus = "DONE"
	JobFailed        JobStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// DONE is reachable from every non-terminal status because stop forces it.
// A retried run moves from RUNNING or INPUT_REQUIRED back to RUNNING.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case JobPending:
		return next == JobRunning || next == JobDone || next == JobFailed
	case JobRunning:
		return next == JobInputRequired || next == JobDone || next == JobFailed
	case JobInputRequired:
		return next == JobRunning || next == JobDone || next == JobFailed
	}
	return false
}

// TransitionTo returns ErrInvalidTransition when s may not move to next.
func (s JobStatus) TransitionTo(next JobStatus) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// Job is the durable record of one graph execution attempt.
type Job struct {
	ID        string         `json:"id"`
	GraphID   string         `json:"graph_id"`
	Status    JobStatus      `json:"status"`
	TaskID    string         `json:"task_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LogEntry is a structured log line appended to a job.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Message   string    `json:"message"`
	NodeUID   string    `json:"node_uid,omitempty"`
	NodeLabel string    `json:"node_label,omitempty"`
	Time      time.Time `json:"time"`
}
