package nodes_test

import (
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncNode(t *testing.T) {
	f := nodes.NewFuncNode()
	assert.Equal(t, "true", mustRun(t, f, stateWith("")), "default body")

	configure(t, f, map[string]any{"func": map[string]any{"text": "function main(state) return state.result .. '!' end"}})
	assert.Equal(t, "hey!", mustRun(t, f, stateWith("hey")))

	configure(t, f, map[string]any{"func": map[string]any{"text": "function main(state) return nil end"}})
	out, err := run(t, f, stateWith("hey"))
	require.NoError(t, err)
	assert.Nil(t, out)

	configure(t, f, map[string]any{"func": map[string]any{"text": "   "}})
	assert.Equal(t, "true", mustRun(t, f, stateWith("")))

	configure(t, f, map[string]any{"func": map[string]any{"text": "function main(state"}})
	_, err = run(t, f, stateWith(""))
	assert.Error(t, err)
}

func TestFuncNode_AppendsHistory(t *testing.T) {
	f := nodes.NewFuncNode()
	configure(t, f, map[string]any{"func": map[string]any{"text": `
function main(state)
    table.insert(state.history, {role = "system", content = "be brief"})
    return "ok"
end`}})
	st := stateWith("")
	assert.Equal(t, "ok", mustRun(t, f, st))
	assert.Equal(t, []domain.Message{{Role: "system", Content: "be brief"}}, st.History)
}

func TestAssertNode(t *testing.T) {
	a := nodes.NewAssertNode()
	assert.Equal(t, "pass", mustRun(t, a, stateWith("pass")), "default assertion holds")

	configure(t, a, map[string]any{"assertion": map[string]any{"text": `Answer == "42"`}})
	st := stateWith("r")
	st.Snapshot["Answer"] = "42"
	assert.Equal(t, "r", mustRun(t, a, st))

	st.Snapshot["Answer"] = "41"
	_, err := run(t, a, st)
	assert.ErrorIs(t, err, nodes.ErrAssertionFailed)
}
