package domain_test

import (
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.JobStatus
		ok       bool
	}{
		{domain.JobPending, domain.JobRunning, true},
		{domain.JobRunning, domain.JobInputRequired, true},
		{domain.JobInputRequired, domain.JobRunning, true},
		{domain.JobRunning, domain.JobDone, true},
		{domain.JobInputRequired, domain.JobDone, true},
		{domain.JobPending, domain.JobInputRequired, false},
		{domain.JobDone, domain.JobRunning, false},
		{domain.JobFailed, domain.JobDone, false},
		{domain.JobDone, domain.JobDone, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.True(t, domain.JobDone.Terminal())
	assert.True(t, domain.JobFailed.Terminal())
	assert.False(t, domain.JobInputRequired.Terminal())
}

func TestNodeDocument_Accessors(t *testing.T) {
	doc := domain.NodeDocument{
		"uid":       "n1",
		"label":     "Prompt",
		"node_type": "PromptNode",
		"prompt":    map[string]any{"label": "p", "text": "hi"},
	}
	assert.Equal(t, "n1", doc.UID())
	assert.Equal(t, "Prompt", doc.Label())
	assert.Equal(t, "PromptNode", doc.Type())
	assert.Equal(t, map[string]any{"prompt": map[string]any{"label": "p", "text": "hi"}}, doc.Options())
}

func TestJobStatus_TransitionTo(t *testing.T) {
	assert.NoError(t, domain.JobPending.TransitionTo(domain.JobRunning))
	err := domain.JobDone.TransitionTo(domain.JobRunning)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "DONE -> RUNNING")
}
