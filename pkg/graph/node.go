package graph

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
)

// Node is one unit of work inside a graph.
type Node struct {
	// UID identifies the node. It never changes for the lifetime of the node.
	UID string
	// Label names the node and is the key of its snapshot entry.
	// Labels are not required to be unique.
	Label string

	behavior Behavior
	inputs   []*Connector
	outputs  []*Connector

	runMu sync.Mutex
}

// NewNode creates a detached node.
func NewNode(uid, label string, b Behavior) *Node {
	if uid == "" {
		uid = newUID()
	}
	return &Node{UID: uid, Label: label, behavior: b}
}

// Type returns the behavior type name.
func (n *Node) Type() string { return n.behavior.Type() }

// Behavior returns the node's behavior.
func (n *Node) Behavior() Behavior { return n.behavior }

// Inputs returns the connectors ending at this node.
func (n *Node) Inputs() []*Connector { return slices.Clone(n.inputs) }

// Outputs returns the connectors leaving this node, in insertion order.
func (n *Node) Outputs() []*Connector { return slices.Clone(n.outputs) }

// Children returns the direct successors of the node.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.outputs))
	for _, c := range n.outputs {
		out = append(out, c.Next)
	}
	return out
}

// Options returns the node's configurable options.
func (n *Node) Options() map[string]any { return n.behavior.Options() }

// OptionKeys returns the option names in sorted order.
func (n *Node) OptionKeys() []string {
	opts := n.behavior.Options()
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetOptions updates the node's options.
func (n *Node) SetOptions(opts map[string]any) error {
	if err := n.behavior.SetOptions(opts); err != nil {
		return fmt.Errorf("node %s: %w", n.Label, err)
	}
	return nil
}

// Before runs the behavior's pre-step, if it has one.
func (n *Node) Before(ctx context.Context, st *domain.State) *BeforeResult {
	if p, ok := n.behavior.(Preparer); ok {
		return p.Before(ctx, n, st)
	}
	return nil
}

// Cost estimates the dollar cost of the node without running it.
// The node's snapshot entry is primed so later cost estimates can read it.
func (n *Node) Cost(st *domain.State) (float64, error) {
	if _, ok := st.Snapshot[n.Label]; !ok {
		st.Snapshot[n.Label] = ""
	}
	if c, ok := n.behavior.(Coster); ok {
		cost, err := c.Cost(n, st)
		if err != nil {
			return 0, fmt.Errorf("cost of node %s: %w", n.Label, err)
		}
		return cost, nil
	}
	return 0, nil
}

// RunNode runs the behavior and records its output in st.
//
// Behavior errors and panics become the textual result
// "Error running node <label>: <err>" and set st.Exception. Only
// infrastructure errors are returned.
func (n *Node) RunNode(ctx context.Context, before *BeforeResult, st *domain.State) (*string, error) {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	if _, ok := st.Snapshot[n.Label]; !ok {
		st.Snapshot[n.Label] = ""
	}

	out, err := n.safeRun(ctx, before, st)
	if err != nil {
		if IsInfrastructure(err) {
			return nil, err
		}
		msg := fmt.Sprintf("Error running node %s: %v", n.Label, err)
		st.Exception = true
		out = &msg
	}
	if out != nil {
		st.Snapshot[n.Label] = *out
		st.Result = *out
	}
	return out, nil
}

func (n *Node) safeRun(ctx context.Context, before *BeforeResult, st *domain.State) (out *string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.behavior.Run(ctx, n, before, st)
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Label, n.UID)
}

func (n *Node) document() domain.NodeDocument {
	doc := domain.NodeDocument{}
	for k, v := range n.behavior.Options() {
		doc[k] = v
	}
	doc[domain.KeyUID] = n.UID
	doc[domain.KeyLabel] = n.Label
	doc[domain.KeyNodeType] = n.Type()
	return doc
}

func removeConnector(list []*Connector, c *Connector) []*Connector {
	return slices.DeleteFunc(list, func(x *Connector) bool { return x == c })
}
