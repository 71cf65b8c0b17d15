package dsl

import (
	"maps"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	uid      string
	label    string
	nodeType string
	options  map[string]any
	builder  *Builder
}

// Label sets the display label, which also keys the node in the snapshot.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.label = label
	return n
}

// Type sets the behavior name of the node.
func (n *NodeBuilder) Type(nodeType string) *NodeBuilder {
	n.nodeType = nodeType
	return n
}

// Set stores one behavior option.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.options[key] = value
	return n
}

// Input makes the node an InputNode asking prompt.
func (n *NodeBuilder) Input(prompt string) *NodeBuilder {
	return n.Type(nodes.TypeInput).Set("prompt", prompt)
}

// Prompt makes the node a PromptNode formatting text against the state.
func (n *NodeBuilder) Prompt(text string) *NodeBuilder {
	return n.Type(nodes.TypePrompt).Set("prompt", map[string]any{"label": "Prompt", "text": text})
}

// Go adds an unconditional branch to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.builder.branch(n.uid, target, graph.DefaultCondition.Label, graph.DefaultCondition.Text)
	return n
}

// Branch adds a branch taken when the Lua condition returns true. label
// names the condition script.
func (n *NodeBuilder) Branch(label, condition, target string) *NodeBuilder {
	n.builder.branch(n.uid, target, label, condition)
	return n
}

// Build returns the serialized node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.NodeDocument {
	doc := make(domain.NodeDocument, len(n.options)+3)
	maps.Copy(doc, n.options)
	doc[domain.KeyUID] = n.uid
	doc[domain.KeyLabel] = n.label
	doc[domain.KeyNodeType] = n.nodeType
	return doc
}
