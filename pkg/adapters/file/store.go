// Package file implements ports.GraphStore on a directory of JSON or YAML
// graph documents, one file per graph uid.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
)

const nodeTypesFile = "node_types.json"

var extensions = []string{".json", ".yaml", ".yml"}

// GraphStore keeps graphs under BasePath. New documents are written as JSON;
// a graph that already exists as YAML stays YAML.
type GraphStore struct {
	BasePath string

	mu sync.Mutex
}

// NewGraphStore creates a store rooted at basePath.
// If basePath is empty, it defaults to ".promptflow/graphs".
func NewGraphStore(basePath string) *GraphStore {
	if basePath == "" {
		basePath = filepath.Join(".promptflow", "graphs")
	}
	return &GraphStore{BasePath: basePath}
}

func validUID(uid string) error {
	if uid == "" {
		return &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	if strings.ContainsAny(uid, `/\`) || uid == "." || uid == ".." {
		return &domain.ValidationError{Field: "uid", Reason: "must not contain path separators"}
	}
	return nil
}

// existing returns the path of the stored file for uid, or "".
func (s *GraphStore) existing(uid string) string {
	for _, ext := range extensions {
		path := filepath.Join(s.BasePath, uid+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads the document for uid.
func (s *GraphStore) Load(_ context.Context, uid string) (*domain.GraphDocument, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	path := s.existing(uid)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, uid)
	}
	return ReadDocument(path)
}

// Save writes the document atomically.
func (s *GraphStore) Save(_ context.Context, doc *domain.GraphDocument) error {
	if doc == nil {
		return &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	if err := validUID(doc.UID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.existing(doc.UID)
	if path == "" {
		path = filepath.Join(s.BasePath, doc.UID+".json")
	}
	return WriteDocument(path, doc)
}

// Delete removes the document file. Missing files are not an error.
func (s *GraphStore) Delete(_ context.Context, uid string) error {
	if err := validUID(uid); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ext := range extensions {
		err := os.Remove(filepath.Join(s.BasePath, uid+ext))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete graph file: %w", err)
		}
	}
	return nil
}

// List returns every graph in the directory ordered by uid. Files that fail
// to parse are skipped.
func (s *GraphStore) List(ctx context.Context) ([]domain.GraphSummary, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.GraphSummary{}, nil
		}
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	var uids []string
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || name == nodeTypesFile || strings.HasPrefix(name, ".") || !slices.Contains(extensions, ext) {
			continue
		}
		uid := strings.TrimSuffix(name, ext)
		if !slices.Contains(uids, uid) {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)

	out := make([]domain.GraphSummary, 0, len(uids))
	for _, uid := range uids {
		doc, err := s.Load(ctx, uid)
		if err != nil {
			continue
		}
		out = append(out, domain.GraphSummary{UID: uid, Label: doc.Label})
	}
	return out, nil
}

// ResolveNodeTypeID allocates ids in first-seen order and persists the
// table next to the graphs.
func (s *GraphStore) ResolveNodeTypeID(_ context.Context, typeName string) (int, error) {
	if strings.TrimSpace(typeName) == "" {
		return 0, &domain.ValidationError{Field: "node_type", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.BasePath, nodeTypesFile)
	types := map[string]int{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &types); err != nil {
			return 0, fmt.Errorf("corrupt node type table: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("failed to read node type table: %w", err)
	}

	if id, ok := types[typeName]; ok {
		return id, nil
	}
	id := len(types) + 1
	types[typeName] = id
	data, err = json.MarshalIndent(types, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(path, data); err != nil {
		return 0, err
	}
	return id, nil
}
