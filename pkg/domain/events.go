package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventJobStatus EventType = "job_status"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id,omitempty"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeUID   string        `json:"node_uid"`
	NodeLabel string        `json:"node_label"`
	NodeType  string        `json:"node_type"`
	Output    *string       `json:"output,omitempty"`
	Failed    bool          `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// JobEvent represents a job status change.
type JobEvent struct {
	EventBase
	Status JobStatus `json:"status"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnJobStatus func(context.Context, *JobEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: chainNode(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave: chainNode(h.OnNodeLeave, other.OnNodeLeave),
		OnJobStatus: chainJob(h.OnJobStatus, other.OnJobStatus),
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainJob(a, b func(context.Context, *JobEvent)) func(context.Context, *JobEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *JobEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
