package ports

import (
	"context"

	"github.com/aretw0/promptflow/pkg/domain"
)

// GraphStore persists graph documents. A Graph is rebuilt from a loaded
// document with graph.FromDocument and a node factory.
type GraphStore interface {
	// Load returns the document stored under uid.
	// Returns domain.ErrGraphNotFound if there is none.
	Load(ctx context.Context, uid string) (*domain.GraphDocument, error)

	// Save inserts or replaces the document atomically.
	Save(ctx context.Context, doc *domain.GraphDocument) error

	// Delete removes the document. Deleting an unknown uid is not an error.
	Delete(ctx context.Context, uid string) error

	// List returns a summary of every stored graph, ordered by uid.
	List(ctx context.Context) ([]domain.GraphSummary, error)

	// ResolveNodeTypeID returns the stable numeric id of a node type name,
	// allocating one the first time the name is seen.
	ResolveNodeTypeID(ctx context.Context, typeName string) (int, error)
}
