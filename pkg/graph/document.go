package graph

import (
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
)

// Document serializes the graph.
func (g *Graph) Document() *domain.GraphDocument {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := &domain.GraphDocument{
		UID:      g.UID,
		Label:    g.Name,
		Created:  g.Created,
		Nodes:    make([]domain.NodeDocument, 0, len(g.nodes)),
		Branches: make([]domain.BranchDocument, 0, len(g.connectors)),
	}
	for _, n := range g.nodes {
		doc.Nodes = append(doc.Nodes, n.document())
	}
	for _, c := range g.connectors {
		doc.Branches = append(doc.Branches, c.document())
	}
	return doc
}

// FromDocument builds a graph from its serialized form. Structural problems
// (unknown node types, duplicate Start or Init nodes, branches pointing at
// missing nodes) are returned as errors.
func FromDocument(doc *domain.GraphDocument, f Factory, opts ...Option) (*Graph, error) {
	if doc == nil {
		return nil, &domain.ValidationError{Field: "document", Reason: "empty"}
	}
	opts = append([]Option{WithUID(doc.UID), WithCreated(doc.Created), WithFactory(f)}, opts...)
	g := New(doc.Label, opts...)

	for i, nd := range doc.Nodes {
		if nd.Type() == "" {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("nodes[%d].node_type", i), Reason: "missing"}
		}
		b, err := f.New(nd.Type(), nd.Options())
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Label(), err)
		}
		if err := g.Insert(NewNode(nd.UID(), nd.Label(), b)); err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Label(), err)
		}
	}
	for _, br := range doc.Branches {
		c := NewConnector(br.UID, Condition{Label: br.Label, Text: br.Conditional})
		if err := g.AddConnector(c, br.Prev, br.Next); err != nil {
			return nil, err
		}
	}
	g.MarkClean()
	return g, nil
}
