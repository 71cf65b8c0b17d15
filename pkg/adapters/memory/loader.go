package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
)

// GraphStore implements ports.GraphStore using an in-memory map.
// Documents are kept serialized so callers never share maps with the store.
type GraphStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	types map[string]int
}

// NewGraphStore creates an empty store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		docs:  make(map[string][]byte),
		types: make(map[string]int),
	}
}

// NewFromDocuments creates a store preloaded with docs.
// This improves DX for tests and the CLI.
func NewFromDocuments(docs ...*domain.GraphDocument) (*GraphStore, error) {
	s := NewGraphStore()
	for _, doc := range docs {
		if err := s.Save(context.Background(), doc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load returns a copy of the stored document.
func (s *GraphStore) Load(_ context.Context, uid string) (*domain.GraphDocument, error) {
	s.mu.RLock()
	raw, ok := s.docs[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, uid)
	}
	var doc domain.GraphDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph %s: %w", uid, err)
	}
	return &doc, nil
}

// Save stores a copy of doc.
func (s *GraphStore) Save(_ context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.UID == "" {
		return &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode graph %s: %w", doc.UID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.UID] = raw
	return nil
}

// Delete removes the document.
func (s *GraphStore) Delete(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uid)
	return nil
}

// List returns every stored graph ordered by uid.
func (s *GraphStore) List(ctx context.Context) ([]domain.GraphSummary, error) {
	s.mu.RLock()
	uids := make([]string, 0, len(s.docs))
	for uid := range s.docs {
		uids = append(uids, uid)
	}
	s.mu.RUnlock()
	slices.Sort(uids)

	out := make([]domain.GraphSummary, 0, len(uids))
	for _, uid := range uids {
		doc, err := s.Load(ctx, uid)
		if err != nil {
			continue
		}
		out = append(out, domain.GraphSummary{UID: doc.UID, Label: doc.Label})
	}
	return out, nil
}

// ResolveNodeTypeID allocates ids in first-seen order, starting at 1.
func (s *GraphStore) ResolveNodeTypeID(_ context.Context, typeName string) (int, error) {
	if strings.TrimSpace(typeName) == "" {
		return 0, &domain.ValidationError{Field: "node_type", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.types[typeName]; ok {
		return id, nil
	}
	id := len(s.types) + 1
	s.types[typeName] = id
	return id, nil
}
