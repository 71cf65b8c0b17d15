package editor

import (
	"context"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
)

// NodeOptions returns the options of one node.
func (e *Editor) NodeOptions(ctx context.Context, uid, nodeUID string) (map[string]any, error) {
	g, err := e.Load(ctx, uid)
	if err != nil {
		return nil, err
	}
	n, ok := g.Node(nodeUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeUID)
	}
	return n.Options(), nil
}

// SetNodeOptions updates the options of one node and returns the result.
func (e *Editor) SetNodeOptions(ctx context.Context, uid, nodeUID string, opts map[string]any) (map[string]any, error) {
	var out map[string]any
	err := e.Edit(ctx, uid, func(g *graph.Graph) error {
		if err := g.SetNodeOptions(nodeUID, opts); err != nil {
			return err
		}
		n, _ := g.Node(nodeUID)
		out = n.Options()
		return nil
	})
	return out, err
}

// AddNode creates a node of nodeType with opts applied over its defaults.
func (e *Editor) AddNode(ctx context.Context, uid, nodeType, label string, opts map[string]any) (string, error) {
	var nodeUID string
	err := e.Edit(ctx, uid, func(g *graph.Graph) error {
		b, err := e.factory.New(nodeType, opts)
		if err != nil {
			return err
		}
		n, err := g.AddNode(label, b)
		if err != nil {
			return err
		}
		nodeUID = n.UID
		return nil
	})
	return nodeUID, err
}

// RemoveNode deletes a node and its connectors.
func (e *Editor) RemoveNode(ctx context.Context, uid, nodeUID string) error {
	return e.Edit(ctx, uid, func(g *graph.Graph) error {
		return g.RemoveNode(nodeUID)
	})
}

// CopyNode duplicates a node and returns the copy's uid.
func (e *Editor) CopyNode(ctx context.Context, uid, nodeUID string) (string, error) {
	var copied string
	err := e.Edit(ctx, uid, func(g *graph.Graph) error {
		n, err := g.CopyNode(nodeUID)
		if err != nil {
			return err
		}
		copied = n.UID
		return nil
	})
	return copied, err
}

// SetLabel renames a node.
func (e *Editor) SetLabel(ctx context.Context, uid, nodeUID, label string) error {
	return e.Edit(ctx, uid, func(g *graph.Graph) error {
		return g.SetLabel(nodeUID, label)
	})
}

// Connect adds a connector and returns its uid. A zero condition means the
// default one.
func (e *Editor) Connect(ctx context.Context, uid, prev, next string, cond graph.Condition) (string, error) {
	var connUID string
	err := e.Edit(ctx, uid, func(g *graph.Graph) error {
		c, err := g.Connect(prev, next, cond)
		if err != nil {
			return err
		}
		connUID = c.UID
		return nil
	})
	return connUID, err
}

// RemoveConnector detaches and deletes a connector.
func (e *Editor) RemoveConnector(ctx context.Context, uid, connUID string) error {
	return e.Edit(ctx, uid, func(g *graph.Graph) error {
		return g.RemoveConnector(connUID)
	})
}

// SetCondition replaces the condition of a connector.
func (e *Editor) SetCondition(ctx context.Context, uid, connUID string, cond graph.Condition) error {
	return e.Edit(ctx, uid, func(g *graph.Graph) error {
		return g.SetCondition(connUID, cond)
	})
}

// Clear removes every node and connector of the graph.
func (e *Editor) Clear(ctx context.Context, uid string) error {
	return e.Edit(ctx, uid, func(g *graph.Graph) error {
		g.Clear()
		return nil
	})
}

// Cost estimates the dollar cost of one run of the stored graph.
func (e *Editor) Cost(ctx context.Context, uid string) (float64, error) {
	g, err := e.Load(ctx, uid)
	if err != nil {
		return 0, err
	}
	return g.Cost(nil)
}
