package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
)

// GraphStore implements ports.GraphStore on SQLite.
type GraphStore struct {
	db *sql.DB
}

// NewGraphStore wraps an opened database.
func NewGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{db: db}
}

// Load returns the stored document.
func (s *GraphStore) Load(ctx context.Context, uid string) (*domain.GraphDocument, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM graphs WHERE uid = ?`, uid).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, uid)
		}
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	var doc domain.GraphDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (uid, label, created, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET label = excluded.label, created = excluded.created, doc = excluded.doc`,
		doc.UID, doc.Label, doc.Created.UnixNano(), string(raw))
	if err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// Delete removes the document.
func (s *GraphStore) Delete(ctx context.Context, uid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("failed to delete graph: %w", err)
	}
	return nil
}

// List returns every graph ordered by uid.
func (s *GraphStore) List(ctx context.Context) ([]domain.GraphSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, label FROM graphs ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	out := []domain.GraphSummary{}
	for rows.Next() {
		var g domain.GraphSummary
		if err := rows.Scan(&g.UID, &g.Label); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ResolveNodeTypeID returns the row id of the node type, inserting it first.
func (s *GraphStore) ResolveNodeTypeID(ctx context.Context, typeName string) (int, error) {
	if typeName == "" {
		return 0, &domain.ValidationError{Field: "node_type", Reason: "must not be empty"}
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO node_types (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, typeName); err != nil {
		return 0, fmt.Errorf("failed to register node type: %w", err)
	}
	var id int
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM node_types WHERE name = ?`, typeName).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve node type: %w", err)
	}
	return id, nil
}
