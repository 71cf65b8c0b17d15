package dsl_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/dsl"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := dsl.New("hello", "Hello").Created(created)

	b.Start("start").Go("ask_name")

	b.Add("ask_name").
		Label("Name").
		Input("What is your name?").
		Go("greet")

	b.Add("greet").
		Prompt("Nice to meet you, {state}!")

	doc, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "hello", doc.UID)
	assert.Equal(t, "Hello", doc.Label)
	assert.Equal(t, created, doc.Created)
	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, graph.TypeStart, doc.Nodes[0].Type())
	assert.Equal(t, "Name", doc.Nodes[1].Label())
	assert.Equal(t, map[string]any{"prompt": "What is your name?"}, doc.Nodes[1].Options())

	require.Len(t, doc.Branches, 2)
	assert.Equal(t, domain.BranchDocument{
		UID:         "hello-b1",
		Label:       graph.DefaultCondition.Label,
		Conditional: graph.DefaultCondition.Text,
		Prev:        "start",
		Next:        "ask_name",
	}, doc.Branches[0])
}

func TestBuilder_RunsAsGraph(t *testing.T) {
	b := dsl.New("route", "Route")
	b.Start("start").Go("answer")
	b.Add("answer").Label("Answer").Input("yes?").
		Branch("is_yes.lua", "function main(state)\n    return Answer == \"yes\"\nend\n", "yes").
		Branch("is_no.lua", "function main(state)\n    return Answer ~= \"yes\"\nend\n", "no")
	b.Add("yes").Label("Yes").Prompt("accepted")
	b.Add("no").Label("No").Prompt("declined")

	doc, err := b.Build()
	require.NoError(t, err)

	tests := []struct {
		answer  string
		want    string
		skipped string
	}{
		{answer: "yes", want: "Yes", skipped: "No"},
		{answer: "no", want: "No", skipped: "Yes"},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			g, err := graph.FromDocument(doc, nodes.Default(nodes.DefaultServices()))
			require.NoError(t, err)

			answer := func(context.Context, *graph.Node, *graph.BeforeResult) (string, error) { return tt.answer, nil }
			ctx := context.Background()
			st, err := g.Initialize(ctx, domain.NewState(), graph.WithInputFunc(answer))
			require.NoError(t, err)
			st, err = g.Run(ctx, st, graph.WithInputFunc(answer))
			require.NoError(t, err)

			assert.Contains(t, st.Snapshot, tt.want)
			assert.NotContains(t, st.Snapshot, tt.skipped)
		})
	}
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := dsl.New("g", "g")
	first := b.Add("n").Type(nodes.TypeDummyLLM)
	assert.Same(t, first, b.Add("n"))

	doc, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, doc.Nodes, 1)
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("untyped node", func(t *testing.T) {
		b := dsl.New("g", "g")
		b.Add("n")
		_, err := b.Build()
		assert.ErrorContains(t, err, `node "n" has no type`)
	})

	t.Run("dangling branch", func(t *testing.T) {
		b := dsl.New("g", "g")
		b.Start("s").Go("missing")
		_, err := b.Build()
		assert.ErrorContains(t, err, `unknown node "missing"`)
	})
}
