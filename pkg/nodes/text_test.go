package nodes_test

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptThenLogging(t *testing.T) {
	g := graph.New("example", graph.WithFactory(nodes.Default(nil)))
	start, err := g.AddNode("Start", graph.Start{})
	require.NoError(t, err)

	prompt := nodes.NewPromptNode()
	configure(t, prompt, map[string]any{"prompt": map[string]any{"text": "hi {state}"}})
	p, err := g.AddNode("Prompt", prompt)
	require.NoError(t, err)

	l, err := g.AddNode("Log", nodes.NewLoggingNode(nil))
	require.NoError(t, err)

	_, err = g.Connect(start.UID, p.UID, graph.Condition{})
	require.NoError(t, err)
	_, err = g.Connect(p.UID, l.UID, graph.Condition{})
	require.NoError(t, err)

	st, err := g.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi ", st.Snapshot["Prompt"])
	assert.Equal(t, "hi ", st.Snapshot["Log"])
	assert.Equal(t, "hi ", st.Result)
}

func TestPromptNode_OptionsKeepLabel(t *testing.T) {
	p := nodes.NewPromptNode()
	configure(t, p, map[string]any{"prompt": map[string]any{"text": "x"}})
	assert.Equal(t, nodes.Text{Label: "Prompt", Text: "x"}, p.Config().Prompt)
}

func TestPromptNode_CostLeavesTemplate(t *testing.T) {
	p := nodes.NewPromptNode()
	configure(t, p, map[string]any{"prompt": map[string]any{"text": "Tell me about {state}"}})
	st := stateWith("cats")

	cost, err := p.Cost(nil, st)
	require.NoError(t, err)
	assert.Zero(t, cost)
	assert.Equal(t, "Tell me about {state}", st.Result)
}

func TestPromptNode_BadTemplateFails(t *testing.T) {
	p := nodes.NewPromptNode()
	configure(t, p, map[string]any{"prompt": map[string]any{"text": "{state.nope}"}})
	_, err := run(t, p, stateWith(""))
	assert.Error(t, err)
}

func TestDateNode(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	d := nodes.NewDateNode(&nodes.Services{Now: func() time.Time { return fixed }})
	assert.Equal(t, "03/09/2024, 14:05:07", mustRun(t, d, stateWith("")))

	configure(t, d, map[string]any{"datetime_format": "2006-01-02"})
	assert.Equal(t, "2024-03-09", mustRun(t, d, stateWith("")))
}

func TestRandomNode(t *testing.T) {
	r := nodes.NewRandomNode(&nodes.Services{Rand: rand.New(rand.NewPCG(1, 2))})
	configure(t, r, map[string]any{"min": 3, "max": "5"})
	for range 50 {
		v, err := strconv.Atoi(mustRun(t, r, stateWith("")))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 3)
		assert.LessOrEqual(t, v, 5)
	}

	configure(t, r, map[string]any{"min": 10, "max": 1})
	_, err := run(t, r, stateWith(""))
	assert.Error(t, err)
}

func TestRegexNode(t *testing.T) {
	r := nodes.NewRegexNode()
	configure(t, r, map[string]any{"regex": `\d+`})
	assert.Equal(t, "42", mustRun(t, r, stateWith("answer: 42 or 43")))
	assert.Equal(t, "", mustRun(t, r, stateWith("no digits")))

	configure(t, r, map[string]any{"regex": `(`})
	_, err := run(t, r, stateWith(""))
	assert.Error(t, err)
}

func TestTagNode(t *testing.T) {
	tag := nodes.NewTagNode()
	configure(t, tag, map[string]any{"start_tag": "<a>", "end_tag": "</a>"})
	assert.Equal(t, "inner", mustRun(t, tag, stateWith("x <a>inner</a> <a>second</a>")))
	assert.Equal(t, "", mustRun(t, tag, stateWith("x <a>unterminated")))
	assert.Equal(t, "", mustRun(t, tag, stateWith("nothing")))
}

func TestDummyLLMNode(t *testing.T) {
	d := nodes.NewDummyLLMNode()
	assert.Equal(t, "dummy string", mustRun(t, d, stateWith("prompt")))
	cost, err := d.Cost(nil, stateWith("prompt"))
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestConfigurable_MergesAndCoerces(t *testing.T) {
	o := nodes.NewOpenAINode(nil)
	configure(t, o, map[string]any{"max_tokens": "512", "temperature": 0.5})

	cfg := o.Config()
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Model, "absent keys keep their value")

	opts := o.Options()
	assert.Equal(t, 512, opts["max_tokens"])
	assert.Equal(t, "gpt-3.5-turbo", opts["model"])
}
