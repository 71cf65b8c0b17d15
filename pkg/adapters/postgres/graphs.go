package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GraphStore implements ports.GraphStore on PostgreSQL.
type GraphStore struct {
	pool *pgxpool.Pool
}

// NewGraphStore wraps a connected pool.
func NewGraphStore(pool *pgxpool.Pool) *GraphStore {
	return &GraphStore{pool: pool}
}

// Load returns the stored document.
func (s *GraphStore) Load(ctx context.Context, uid string) (*domain.GraphDocument, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM graphs WHERE uid = $1`, uid).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, uid)
		}
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	var doc domain.GraphDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &doc, nil
}

// Save upserts the document.
func (s *GraphStore) Save(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.UID == "" {
		return &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO graphs (uid, label, created, doc) VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET label = EXCLUDED.label, created = EXCLUDED.created, doc = EXCLUDED.doc`,
		doc.UID, doc.Label, doc.Created, raw)
	if err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// Delete removes the document.
func (s *GraphStore) Delete(ctx context.Context, uid string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM graphs WHERE uid = $1`, uid); err != nil {
		return fmt.Errorf("failed to delete graph: %w", err)
	}
	return nil
}

// List returns every graph ordered by uid.
func (s *GraphStore) List(ctx context.Context) ([]domain.GraphSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT uid, label FROM graphs ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.GraphSummary, error) {
		var g domain.GraphSummary
		err := row.Scan(&g.UID, &g.Label)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	return out, nil
}

// ResolveNodeTypeID returns the serial id of the node type, inserting it
// first.
func (s *GraphStore) ResolveNodeTypeID(ctx context.Context, typeName string) (int, error) {
	if typeName == "" {
		return 0, &domain.ValidationError{Field: "node_type", Reason: "must not be empty"}
	}
	var id int
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO node_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM node_types WHERE name = $1
		LIMIT 1`, typeName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve node type: %w", err)
	}
	return id, nil
}
