package editor

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
)

func TestEditor_LocksAreReleased(t *testing.T) {
	ed := New(memory.NewGraphStore(), nodes.Default(nil))
	ctx := context.Background()

	for i := range 1000 {
		uid := fmt.Sprintf("graph-%d", i)
		_ = ed.WithLock(ctx, uid, func(context.Context) error { return nil })
		_ = ed.Delete(ctx, uid)
	}
	assert.Empty(t, ed.locks)
}
