package nodes_test

import (
	"context"
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/stretchr/testify/require"
)

func stateWith(result string) *domain.State {
	st := domain.NewState()
	st.Result = result
	return st
}

func run(t *testing.T, b graph.Behavior, st *domain.State) (*string, error) {
	t.Helper()
	n := graph.NewNode("", "Node", b)
	return b.Run(context.Background(), n, nil, st)
}

func mustRun(t *testing.T, b graph.Behavior, st *domain.State) string {
	t.Helper()
	out, err := run(t, b, st)
	require.NoError(t, err)
	require.NotNil(t, out)
	return *out
}

func configure(t *testing.T, b graph.Behavior, opts map[string]any) {
	t.Helper()
	require.NoError(t, b.SetOptions(opts))
}
