package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// JSONConfig holds an optional JSON schema, either as an object or as JSON text.
type JSONConfig struct {
	Schema any `mapstructure:"schema"`
}

// JSONNode checks that the result is JSON matching the schema. Problems are
// reported as the output text, not as node failures.
type JSONNode struct {
	*Configurable[JSONConfig]
}

func NewJSONNode() *JSONNode {
	return &JSONNode{NewConfigurable(JSONConfig{})}
}

func (*JSONNode) Type() string { return TypeJSON }

func (j *JSONNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	var data any
	if err := json.Unmarshal([]byte(st.Result), &data); err != nil {
		return textOut("Invalid JSON"), nil
	}

	schema, err := j.schema()
	if err != nil {
		return textOut("Schema error: " + err.Error()), nil
	}
	if schema != nil {
		if err := schema.VisitJSON(data); err != nil {
			return textOut("Validation error: " + err.Error()), nil
		}
	}
	return textOut(st.Result), nil
}

// schema decodes the configured schema. It is not checked against the
// OpenAPI rules, which reject plain JSON Schemas such as an array type
// without items.
func (j *JSONNode) schema() (*openapi3.Schema, error) {
	var raw []byte
	switch s := j.Config().Schema.(type) {
	case nil:
		return nil, nil
	case string:
		if s == "" {
			return nil, nil
		}
		raw = []byte(s)
	default:
		b, err := json.Marshal(normalizeYAML(s))
		if err != nil {
			return nil, err
		}
		raw = b
	}

	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return schema, nil
}

// JsonerizerNode turns a literal mapping such as {'a': 1, 'b': [2, 3]} into
// indented JSON. YAML flow syntax covers the literal forms.
type JsonerizerNode struct {
	*Configurable[struct{}]
}

func NewJsonerizerNode() *JsonerizerNode {
	return &JsonerizerNode{NewConfigurable(struct{}{})}
}

func (*JsonerizerNode) Type() string { return TypeJsonerizer }

func (*JsonerizerNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	var v any
	if err := yaml.Unmarshal([]byte(st.Result), &v); err != nil {
		return nil, fmt.Errorf("parse literal: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		if _, ok := v.(map[any]any); !ok {
			return nil, fmt.Errorf("result is not a mapping literal")
		}
	}
	out, err := json.MarshalIndent(normalizeYAML(v), "", "    ")
	if err != nil {
		return nil, err
	}
	return textOut(string(out)), nil
}

// normalizeYAML converts the map[any]any values yaml produces for
// non-string keys into JSON-encodable maps.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	}
	return v
}
