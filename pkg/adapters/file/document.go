package file

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DecodeDocument parses a graph document. Input starting with '{' is read
// as JSON, anything else as YAML.
func DecodeDocument(data []byte) (*domain.GraphDocument, error) {
	var doc domain.GraphDocument
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON graph document: %w", err)
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML graph document: %w", err)
	}
	for i, n := range doc.Nodes {
		doc.Nodes[i] = plainMap(n)
	}
	return &doc, nil
}

// plainMap rewrites nested mappings to map[string]any. yaml.v3 decodes
// mappings nested in a NodeDocument as NodeDocument, while JSON stores
// return plain maps.
func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch v := v.(type) {
	case domain.NodeDocument:
		return plainMap(v)
	case map[string]any:
		return plainMap(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = plainValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = plainValue(val)
		}
		return out
	}
	return v
}

// EncodeDocument renders doc as YAML when path has a .yaml/.yml extension
// and as indented JSON otherwise.
func EncodeDocument(path string, doc *domain.GraphDocument) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ReadDocument loads a graph document from a JSON or YAML file.
func ReadDocument(path string) (*domain.GraphDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteDocument atomically writes doc to path.
func WriteDocument(path string, doc *domain.GraphDocument) error {
	data, err := EncodeDocument(path, doc)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return writeAtomic(path, data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
