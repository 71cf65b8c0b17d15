package domain

import (
	"errors"
	"fmt"
)

// ErrGraphNotFound is returned when a graph uid cannot be found in the store.
var ErrGraphNotFound = errors.New("graph not found")

// ErrJobNotFound is returned when a job id cannot be found in the store.
var ErrJobNotFound = errors.New("job not found")

// ErrNodeNotFound is returned when a node reference does not resolve inside a graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrConnectorNotFound is returned when a connector uid does not resolve inside a graph.
var ErrConnectorNotFound = errors.New("connector not found")

// ErrDuplicateStart is returned when a second Start node is added to a graph.
var ErrDuplicateStart = errors.New("graph already has a start node")

// ErrDuplicateInit is returned when a second Init node is added to a graph.
var ErrDuplicateInit = errors.New("graph already has an init node")

// ErrNoStartNode is returned when a graph is run without a Start node.
var ErrNoStartNode = errors.New("graph has no start node")

// ErrUnknownNodeType is returned when a node type is not registered.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrInputUnavailable is returned when a node requests input but the run has no way to obtain it.
var ErrInputUnavailable = errors.New("blocking input is not available for this run")

// ErrInvalidTransition is returned when a job status change is not allowed.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ErrNoOutput is returned when a job has not stored a final state yet.
var ErrNoOutput = errors.New("job has no output")

// ErrTaskNotFound is returned when a task handle is unknown to the queue.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskRevoked is the cause attached to the context of a revoked task.
var ErrTaskRevoked = errors.New("task revoked")

// ValidationError reports a malformed graph document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrNotAwaitingInput is returned when input is sent to a job that is not paused on an input request.
var ErrNotAwaitingInput = errors.New("job is not awaiting input")
