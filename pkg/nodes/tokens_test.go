package nodes_test

import (
	"testing"

	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestTiktokenCounter(t *testing.T) {
	if _, err := tiktoken.GetEncoding("cl100k_base"); err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
	c := nodes.NewTiktokenCounter(nil)

	assert.Equal(t, 0, c.Count("gpt-4", ""))
	assert.Equal(t, 2, c.Count("gpt-4", "hello world"))
	assert.Equal(t, 2, c.Count("", "hello world"), "no model uses cl100k_base")
	assert.Equal(t, 2, c.Count("not-a-model", "hello world"), "unknown models use cl100k_base")
}
