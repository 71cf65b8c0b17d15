package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalManager_Lifecycle(t *testing.T) {
	sm := NewSignalManager(context.Background())
	ctx := sm.Context()
	assert.NoError(t, ctx.Err())

	sm.Stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestSignalManager_FollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sm := NewSignalManager(parent)
	defer sm.Stop()

	cancel()
	assert.Error(t, sm.Context().Err())
}

func TestSignalManager_CheckRace(t *testing.T) {
	sm := NewSignalManager(context.Background())
	defer sm.Stop()

	start := time.Now()
	sm.CheckRace()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "CheckRace took too long")
}

func TestSignalManager_CheckRaceReturnsWhenCancelled(t *testing.T) {
	sm := NewSignalManager(context.Background())
	sm.Stop()

	start := time.Now()
	sm.CheckRace()
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
