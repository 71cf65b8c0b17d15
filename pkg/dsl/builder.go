package dsl

import (
	"fmt"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	uid     string
	label   string
	created time.Time

	order    []string
	nodes    map[string]*NodeBuilder
	branches []domain.BranchDocument
}

// New creates a new graph builder.
func New(uid, label string) *Builder {
	return &Builder{
		uid:   uid,
		label: label,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Created fixes the creation time recorded in the document. It defaults to
// the time Build is called.
func (b *Builder) Created(t time.Time) *Builder {
	b.created = t
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(uid string) *NodeBuilder {
	if nb, ok := b.nodes[uid]; ok {
		return nb
	}
	nb := &NodeBuilder{
		uid:     uid,
		label:   uid,
		options: make(map[string]any),
		builder: b,
	}
	b.nodes[uid] = nb
	b.order = append(b.order, uid)
	return nb
}

// Start adds the StartNode of the graph.
func (b *Builder) Start(uid string) *NodeBuilder {
	return b.Add(uid).Label("Start").Type(graph.TypeStart)
}

func (b *Builder) branch(prev, next, label, text string) {
	b.branches = append(b.branches, domain.BranchDocument{
		UID:         fmt.Sprintf("%s-b%d", b.uid, len(b.branches)+1),
		Label:       label,
		Conditional: text,
		Prev:        prev,
		Next:        next,
	})
}

// Build validates the references between nodes and returns the document.
// Node types are only checked for presence; unknown types surface when the
// document is turned into a graph.
func (b *Builder) Build() (*domain.GraphDocument, error) {
	created := b.created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	doc := &domain.GraphDocument{
		UID:      b.uid,
		Label:    b.label,
		Created:  created,
		Nodes:    make([]domain.NodeDocument, 0, len(b.order)),
		Branches: make([]domain.BranchDocument, 0, len(b.branches)),
	}
	for _, uid := range b.order {
		nb := b.nodes[uid]
		if nb.nodeType == "" {
			return nil, fmt.Errorf("node %q has no type", uid)
		}
		doc.Nodes = append(doc.Nodes, nb.Build())
	}
	for _, br := range b.branches {
		if _, ok := b.nodes[br.Next]; !ok {
			return nil, fmt.Errorf("branch from %q targets unknown node %q", br.Prev, br.Next)
		}
		doc.Branches = append(doc.Branches, br)
	}
	return doc, nil
}
