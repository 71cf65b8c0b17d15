package graph_test

import (
	"context"
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnector_DefaultConditionAlwaysTrue(t *testing.T) {
	for name, cond := range map[string]graph.Condition{
		"zero value": {},
		"explicit":   graph.DefaultCondition,
		"blank text": {Label: "x.lua", Text: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			c := graph.NewConnector("", cond)
			ok, err := c.Evaluate(context.Background(), domain.NewState())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Nil(t, c.ConditionLabel())
		})
	}
}

func TestConnector_ConditionLabelSetForCustomCondition(t *testing.T) {
	c := graph.NewConnector("", graph.Condition{Label: "is_yes.lua", Text: "return Answer == 'yes'"})
	require.NotNil(t, c.ConditionLabel())
	assert.Equal(t, "is_yes.lua", *c.ConditionLabel())

	st := domain.NewState()
	st.Snapshot["Answer"] = "yes"
	ok, err := c.Evaluate(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, ok)

	st.Snapshot["Answer"] = "no"
	ok, err = c.Evaluate(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnector_DefaultTextWithOtherLabelIsNotDefault(t *testing.T) {
	c := graph.NewConnector("", graph.Condition{Label: "renamed.lua", Text: graph.DefaultCondition.Text})
	assert.NotNil(t, c.ConditionLabel())
}

func TestConnector_EvaluateErrors(t *testing.T) {
	for name, text := range map[string]string{
		"syntax":  "function main(",
		"runtime": "function main(state) error('boom') end",
	} {
		t.Run(name, func(t *testing.T) {
			c := graph.NewConnector("c1", graph.Condition{Label: "bad.lua", Text: text})
			_, err := c.Evaluate(context.Background(), domain.NewState())
			var cerr *graph.ConditionError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, "c1", cerr.ConnectorUID)
		})
	}
}

func TestConnector_AttachDetach(t *testing.T) {
	a := graph.NewNode("a", "A", graph.Start{})
	b := graph.NewNode("b", "B", graph.Start{})
	c := graph.NewConnector("", graph.Condition{})

	c.AttachTo(a, b)
	assert.Equal(t, []*graph.Connector{c}, a.Outputs())
	assert.Equal(t, []*graph.Connector{c}, b.Inputs())

	c.Detach()
	assert.Empty(t, a.Outputs())
	assert.Empty(t, b.Inputs())
	assert.Nil(t, c.Prev)
	assert.Nil(t, c.Next)
}

func TestConnector_DetectCycle(t *testing.T) {
	g := graph.New("g")
	a := mustAdd(g, "A", graph.Start{})
	b := mustAdd(g, "B", echo(nil, ""))
	c := mustAdd(g, "C", echo(nil, ""))
	ab := mustConnect(g, a, b)
	bc := mustConnect(g, b, c)
	assert.False(t, ab.DetectCycle())
	assert.False(t, bc.DetectCycle())

	ca := mustConnect(g, c, a)
	assert.True(t, ca.DetectCycle())
	assert.True(t, ab.DetectCycle())

	self := mustConnect(g, b, b)
	assert.True(t, self.DetectCycle())
}
