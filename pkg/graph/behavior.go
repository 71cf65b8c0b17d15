package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
)

// Node types known to the engine itself.
const (
	TypeStart = "StartNode"
	TypeInit  = "InitNode"
)

// BeforeResult is what a behavior asks for before it runs.
type BeforeResult struct {
	// NeedsInput pauses the run until a value is delivered for the job.
	NeedsInput bool
	// Prompt is shown to whoever provides the input.
	Prompt string
	// Input holds the delivered value once the wait is over.
	Input string
}

// Behavior is the unit of work carried by a node.
type Behavior interface {
	// Type returns the registered node type name.
	Type() string
	// Run performs the work. A nil output stops the current branch.
	Run(ctx context.Context, n *Node, before *BeforeResult, st *domain.State) (*string, error)
	// Options returns the configurable options keyed by name.
	Options() map[string]any
	// SetOptions replaces the options present in opts.
	SetOptions(opts map[string]any) error
}

// Preparer is implemented by behaviors that need a pre-step.
type Preparer interface {
	Before(ctx context.Context, n *Node, st *domain.State) *BeforeResult
}

// Coster is implemented by behaviors with a non-zero cost estimate.
type Coster interface {
	Cost(n *Node, st *domain.State) (float64, error)
}

// Factory builds behaviors by type name.
type Factory interface {
	New(nodeType string, opts map[string]any) (Behavior, error)
}

// InfrastructureError marks a failure that must abort the run instead of
// becoming the node's result.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure: %v", e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infrastructure wraps err so the engine propagates it.
func Infrastructure(err error) error {
	if err == nil {
		return nil
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return err
	}
	return &InfrastructureError{Err: err}
}

// IsInfrastructure reports whether err must abort the run.
func IsInfrastructure(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}

// Start marks the entry point of a graph.
type Start struct{}

func (Start) Type() string                    { return TypeStart }
func (Start) Options() map[string]any         { return map[string]any{} }
func (Start) SetOptions(map[string]any) error { return nil }

func (Start) Run(_ context.Context, _ *Node, _ *BeforeResult, _ *domain.State) (*string, error) {
	out := ""
	return &out, nil
}

// Init runs once per graph instance, before the Start node.
// The first run returns "" and every later run returns nil.
type Init struct {
	mu  sync.Mutex
	ran bool
}

func (*Init) Type() string                    { return TypeInit }
func (*Init) Options() map[string]any         { return map[string]any{} }
func (*Init) SetOptions(map[string]any) error { return nil }

func (i *Init) Run(_ context.Context, _ *Node, _ *BeforeResult, _ *domain.State) (*string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ran {
		return nil, nil
	}
	i.ran = true
	out := ""
	return &out, nil
}

// RanOnce reports whether the init node already ran.
func (i *Init) RanOnce() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ran
}
