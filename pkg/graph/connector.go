package graph

import (
	"context"
	"strings"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/script"
)

// Condition is the user-authored predicate guarding a connector.
type Condition struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// DefaultCondition always holds and is never handed to the sandbox.
var DefaultCondition = Condition{
	Label: "Untitled.lua",
	Text:  "function main(state)\n    return true\nend\n",
}

// IsDefault reports whether c is the always-true template.
func (c Condition) IsDefault() bool {
	return c.Label == DefaultCondition.Label && strings.TrimSpace(c.Text) == strings.TrimSpace(DefaultCondition.Text)
}

// ConditionError reports a condition that failed to compile or run.
type ConditionError struct {
	ConnectorUID string
	Err          error
}

func (e *ConditionError) Error() string {
	return "condition of connector " + e.ConnectorUID + ": " + e.Err.Error()
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Connector is a directed, conditionally taken edge between two nodes.
type Connector struct {
	UID  string
	Prev *Node
	Next *Node

	mu      sync.Mutex
	cond    Condition
	program *script.Program
}

// NewConnector creates a detached connector. An empty condition text means
// the default condition.
func NewConnector(uid string, cond Condition) *Connector {
	if uid == "" {
		uid = newUID()
	}
	c := &Connector{UID: uid}
	c.SetCondition(cond)
	return c
}

// Condition returns the connector's condition.
func (c *Connector) Condition() Condition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cond
}

// SetCondition replaces the condition. Compilation happens on first use.
func (c *Connector) SetCondition(cond Condition) {
	if strings.TrimSpace(cond.Text) == "" {
		cond = DefaultCondition
	}
	if cond.Label == "" {
		cond.Label = DefaultCondition.Label
	}
	c.mu.Lock()
	c.cond = cond
	c.program = nil
	c.mu.Unlock()
}

// ConditionLabel returns the display name of the condition, or nil when the
// condition is the default template.
func (c *Connector) ConditionLabel() *string {
	cond := c.Condition()
	if cond.IsDefault() {
		return nil
	}
	return &cond.Label
}

// Compile checks the condition without running it.
func (c *Connector) Compile() error {
	_, err := c.compiled()
	return err
}

func (c *Connector) compiled() (*script.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.program != nil {
		return c.program, nil
	}
	p, err := script.Compile(c.cond.Label, c.cond.Text)
	if err != nil {
		return nil, &ConditionError{ConnectorUID: c.UID, Err: err}
	}
	c.program = p
	return p, nil
}

// Evaluate reports whether the connector may be taken for the current state.
func (c *Connector) Evaluate(ctx context.Context, st *domain.State) (bool, error) {
	if c.Condition().IsDefault() {
		return true, nil
	}
	p, err := c.compiled()
	if err != nil {
		return false, err
	}
	ok, err := p.Truthy(ctx, st)
	if err != nil {
		return false, &ConditionError{ConnectorUID: c.UID, Err: err}
	}
	return ok, nil
}

// AttachTo links the connector between prev and next, updating both nodes.
func (c *Connector) AttachTo(prev, next *Node) {
	c.Detach()
	c.Prev = prev
	c.Next = next
	prev.outputs = append(prev.outputs, c)
	next.inputs = append(next.inputs, c)
}

// Detach removes the connector from both endpoint nodes.
func (c *Connector) Detach() {
	if c.Prev != nil {
		c.Prev.outputs = removeConnector(c.Prev.outputs, c)
	}
	if c.Next != nil {
		c.Next.inputs = removeConnector(c.Next.inputs, c)
	}
	c.Prev = nil
	c.Next = nil
}

// DetectCycle reports whether taking this connector can revisit a node:
// either a self-loop or prev being reachable from next.
func (c *Connector) DetectCycle() bool {
	if c.Prev == nil || c.Next == nil {
		return false
	}
	if c.Prev == c.Next {
		return true
	}
	seen := map[*Node]bool{}
	stack := []*Node{c.Next}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == c.Prev {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, n.Children()...)
	}
	return false
}

func (c *Connector) document() domain.BranchDocument {
	cond := c.Condition()
	return domain.BranchDocument{
		UID:         c.UID,
		Label:       cond.Label,
		Conditional: cond.Text,
		Prev:        c.Prev.UID,
		Next:        c.Next.UID,
	}
}
