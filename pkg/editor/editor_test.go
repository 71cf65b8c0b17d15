package editor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/editor"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEditor(t *testing.T, opts ...editor.Option) (*editor.Editor, *memory.GraphStore) {
	t.Helper()
	store := memory.NewGraphStore()
	return editor.New(store, nodes.Default(nil), opts...), store
}

func TestEditor_CreateStoresStartNode(t *testing.T) {
	ctx := context.Background()
	ed, store := newEditor(t)

	g, err := ed.Create(ctx, "fresh")
	require.NoError(t, err)

	doc, err := store.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", doc.Label)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, graph.TypeStart, doc.Nodes[0].Type())

	id, err := store.ResolveNodeTypeID(ctx, graph.TypeStart)
	require.NoError(t, err)
	assert.Equal(t, 1, id, "saving registers node types")
}

func TestEditor_NodeOptionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	ed, _ := newEditor(t)
	g, err := ed.Create(ctx, "opts")
	require.NoError(t, err)

	nodeUID, err := ed.AddNode(ctx, g.UID, nodes.TypePrompt, "Prompt", nil)
	require.NoError(t, err)

	updated, err := ed.SetNodeOptions(ctx, g.UID, nodeUID, map[string]any{
		"prompt": map[string]any{"label": "Prompt", "text": "hello {state}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello {state}", updated["prompt"].(map[string]any)["text"])

	opts, err := ed.NodeOptions(ctx, g.UID, nodeUID)
	require.NoError(t, err)
	assert.Equal(t, updated, opts)

	_, err = ed.NodeOptions(ctx, g.UID, "missing")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestEditor_ConnectRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	ed, _ := newEditor(t)
	g, err := ed.Create(ctx, "edges")
	require.NoError(t, err)
	start := g.StartNode().UID

	dummy, err := ed.AddNode(ctx, g.UID, nodes.TypeDummyLLM, "LLM", nil)
	require.NoError(t, err)
	conn, err := ed.Connect(ctx, g.UID, start, dummy, graph.Condition{})
	require.NoError(t, err)
	require.NoError(t, ed.SetCondition(ctx, g.UID, conn, graph.Condition{Label: "never.lua", Text: "return false"}))

	copied, err := ed.CopyNode(ctx, g.UID, dummy)
	require.NoError(t, err)
	require.NoError(t, ed.SetLabel(ctx, g.UID, copied, "LLM 2"))

	loaded, err := ed.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes(), 3)
	require.Len(t, loaded.Connectors(), 1)
	assert.Equal(t, "never.lua", loaded.Connectors()[0].Condition().Label)
	n, ok := loaded.Node(copied)
	require.True(t, ok)
	assert.Equal(t, "LLM 2", n.Label)

	require.NoError(t, ed.RemoveNode(ctx, g.UID, dummy))
	loaded, err = ed.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Connectors())

	require.NoError(t, ed.Clear(ctx, g.UID))
	loaded, err = ed.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Nodes())
}

func TestEditor_FailedEditIsDiscarded(t *testing.T) {
	ctx := context.Background()
	ed, _ := newEditor(t)
	g, err := ed.Create(ctx, "dup")
	require.NoError(t, err)

	_, err = ed.AddNode(ctx, g.UID, graph.TypeStart, "Start 2", nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateStart)

	_, err = ed.AddNode(ctx, g.UID, "NoSuchNode", "x", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)

	loaded, err := ed.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes(), 1)
}

func TestEditor_ConcurrentEditsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGraphStore()
	locker := memory.NewLocker()
	reg := nodes.Default(nil)
	// Two editors stand in for two replicas sharing a store and a locker.
	a := editor.New(store, reg, editor.WithLocker(locker))
	b := editor.New(store, reg, editor.WithLocker(locker))

	g, err := a.Create(ctx, "busy")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		ed := a
		if i%2 == 1 {
			ed = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ed.AddNode(ctx, g.UID, nodes.TypeDummyLLM, fmt.Sprintf("n%d", i), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := a.Load(ctx, g.UID)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes(), 21)
}

func TestEditor_ImportAndCost(t *testing.T) {
	ctx := context.Background()
	ed, store := newEditor(t)

	doc := &domain.GraphDocument{
		UID:   "imported",
		Label: "Imported",
		Nodes: []domain.NodeDocument{
			{"uid": "s", "label": "Start", "node_type": "StartNode"},
			{"uid": "d", "label": "LLM", "node_type": "DummyLLMNode", "dummy_string": "hi"},
		},
		Branches: []domain.BranchDocument{{UID: "b", Prev: "s", Next: "d"}},
	}
	_, err := ed.Import(ctx, doc)
	require.NoError(t, err)

	cost, err := ed.Cost(ctx, "imported")
	require.NoError(t, err)
	assert.Zero(t, cost)

	bad := &domain.GraphDocument{UID: "bad", Nodes: []domain.NodeDocument{
		{"uid": "s1", "label": "Start", "node_type": "StartNode"},
		{"uid": "s2", "label": "Start", "node_type": "StartNode"},
	}}
	_, err = ed.Import(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrDuplicateStart)
	_, err = store.Load(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)

	require.NoError(t, ed.Delete(ctx, "imported"))
	_, err = ed.Cost(ctx, "imported")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)
}
