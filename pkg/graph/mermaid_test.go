package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMermaid(t *testing.T) {
	g := graph.New("g")
	require.NoError(t, g.Insert(graph.NewNode("s-1", "Start", graph.Start{})))
	require.NoError(t, g.Insert(graph.NewNode("q.1", "Ask", &asking{})))
	require.NoError(t, g.Insert(graph.NewNode("e/1", `Say "hi"`, echo(nil, ""))))
	_, err := g.Connect("s-1", "q.1", graph.Condition{})
	require.NoError(t, err)
	_, err = g.Connect("q.1", "e/1", graph.Condition{Label: "yes.lua", Text: "return true"})
	require.NoError(t, err)

	out := g.Mermaid(nil)
	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, `n_s_1(("Start"))`)
	assert.Contains(t, out, `n_q_1[/"Ask"/]`)
	assert.Contains(t, out, `n_e_1["Say 'hi'"]`)
	assert.Contains(t, out, "n_s_1 --> n_q_1")
	assert.Contains(t, out, `n_q_1 -- "yes.lua" --> n_e_1`)
	assert.NotContains(t, out, "classDef")
}

func TestMermaid_Overlay(t *testing.T) {
	g := graph.New("g")
	require.NoError(t, g.Insert(graph.NewNode("a", "A", graph.Start{})))
	require.NoError(t, g.Insert(graph.NewNode("b", "B", echo(nil, ""))))

	out := g.Mermaid(&graph.Overlay{Visited: []string{"a", "a", "gone"}, Current: "b"})
	assert.Equal(t, 1, strings.Count(out, "class n_a visited;"))
	assert.NotContains(t, out, "n_gone")
	assert.Contains(t, out, "class n_b current;")
}
