package script_test

import (
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	st := domain.NewState()
	st.Result = "world"
	st.Snapshot["Input"] = "Ada"
	st.Snapshot["My Node"] = "spaced"
	st.History = []domain.Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"state", "hello {state}", "hello world"},
		{"result", "hello {state.result}!", "hello world!"},
		{"index", "name={state[Input]}", "name=Ada"},
		{"quoted index", `{state.snapshot["My Node"]}`, "spaced"},
		{"missing label", "[{state[Nope]}]", "[]"},
		{"escaped", "{{literal}} {state}", "{literal} world"},
		{"history", "{state.history}", "user: a\nassistant: b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := script.Format(tt.tmpl, st)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_EmptyState(t *testing.T) {
	got, err := script.Format("hi {state}", domain.NewState())
	require.NoError(t, err)
	assert.Equal(t, "hi ", got)
}

func TestFormat_Errors(t *testing.T) {
	st := domain.NewState()
	for _, tmpl := range []string{"{unknown}", "open {state", "close }"} {
		_, err := script.Format(tmpl, st)
		assert.Error(t, err, tmpl)
	}
}
