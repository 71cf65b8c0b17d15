package nodes_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputNode(t *testing.T) {
	in := nodes.NewInputNode()
	n := graph.NewNode("", "Question", in)

	before := in.Before(context.Background(), n, stateWith(""))
	require.NotNil(t, before)
	assert.True(t, before.NeedsInput)
	assert.Equal(t, "Question", before.Prompt)

	before.Input = "answer"
	out, err := in.Run(context.Background(), n, before, stateWith(""))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "answer", *out)

	before.Input = ""
	out, err = in.Run(context.Background(), n, before, stateWith(""))
	require.NoError(t, err)
	assert.Nil(t, out, "empty input stops the branch")
}

func TestFileOutputThenInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	out := nodes.NewFileOutput()
	configure(t, out, map[string]any{"filename": path})
	assert.Equal(t, "first", mustRun(t, out, stateWith("first")))

	configure(t, out, map[string]any{"mode": "a"})
	mustRun(t, out, stateWith(" second"))

	in := nodes.NewFileInput()
	configure(t, in, map[string]any{"filename": path})
	assert.Equal(t, "first second", mustRun(t, in, stateWith("")))

	configure(t, out, map[string]any{"mode": "x"})
	_, err := run(t, out, stateWith(""))
	assert.Error(t, err)
}

func TestJSONFileNodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	payload, err := json.Marshal(map[string]any{"filename": path, "data": "hello"})
	require.NoError(t, err)

	out := nodes.NewJSONFileOutput()
	assert.Equal(t, string(payload), mustRun(t, out, stateWith(string(payload))))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(written))

	in := nodes.NewJSONFileInput()
	assert.Equal(t, "hello", mustRun(t, in, stateWith(string(payload))))

	_, err = run(t, in, stateWith("not json"))
	assert.Error(t, err)
	_, err = run(t, in, stateWith(`{"other": "x"}`))
	assert.Error(t, err)
}

func TestFileInput_Missing(t *testing.T) {
	in := nodes.NewFileInput()
	configure(t, in, map[string]any{"filename": filepath.Join(t.TempDir(), "missing")})
	_, err := run(t, in, stateWith(""))
	assert.Error(t, err)
}
