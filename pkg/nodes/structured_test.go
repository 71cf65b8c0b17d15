package nodes_test

import (
	"testing"

	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONNode(t *testing.T) {
	j := nodes.NewJSONNode()
	assert.Equal(t, "Invalid JSON", mustRun(t, j, stateWith("{nope")))
	assert.Equal(t, `{"a": 1}`, mustRun(t, j, stateWith(`{"a": 1}`)), "no schema accepts any JSON")

	configure(t, j, map[string]any{"schema": map[string]any{
		"type":       "object",
		"required":   []any{"name"},
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}})
	assert.Equal(t, `{"name": "x"}`, mustRun(t, j, stateWith(`{"name": "x"}`)))
	assert.Contains(t, mustRun(t, j, stateWith(`{"name": 3}`)), "Validation error: ")
	assert.Contains(t, mustRun(t, j, stateWith(`{}`)), "Validation error: ")
}

func TestJSONNode_SchemaAsText(t *testing.T) {
	j := nodes.NewJSONNode()
	configure(t, j, map[string]any{"schema": `{"type": "array"}`})
	assert.Equal(t, `[1]`, mustRun(t, j, stateWith(`[1]`)))
	assert.Contains(t, mustRun(t, j, stateWith(`{}`)), "Validation error: ")

	configure(t, j, map[string]any{"schema": `{"type": `})
	assert.Contains(t, mustRun(t, j, stateWith(`[1]`)), "Schema error: ")
}

func TestJSONNode_PlainJSONSchemas(t *testing.T) {
	j := nodes.NewJSONNode()
	configure(t, j, map[string]any{"schema": `{"type": "array"}`})
	assert.Equal(t, `[1,2]`, mustRun(t, j, stateWith(`[1,2]`)))

	configure(t, j, map[string]any{"schema": map[string]any{
		"properties": map[string]any{"tags": map[string]any{"type": "array"}},
	}})
	assert.Equal(t, `{"tags": ["a"]}`, mustRun(t, j, stateWith(`{"tags": ["a"]}`)))
	assert.Contains(t, mustRun(t, j, stateWith(`{"tags": "a"}`)), "Validation error: ")
}

func TestJsonerizerNode(t *testing.T) {
	j := nodes.NewJsonerizerNode()
	out := mustRun(t, j, stateWith(`{'a': 1, 'b': [2, 'three'], 'c': {'d': true}}`))
	assert.JSONEq(t, `{"a": 1, "b": [2, "three"], "c": {"d": true}}`, out)
	assert.Contains(t, out, "\n    \"a\": 1", "four space indent")

	_, err := run(t, j, stateWith(`[1, 2]`))
	assert.Error(t, err)
	_, err = run(t, j, stateWith(`{'a': [}`))
	require.Error(t, err)
}
