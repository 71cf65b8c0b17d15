package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalManager turns SIGINT and SIGTERM into context cancellation for
// terminal runs.
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager starts listening for signals derived from parent.
func NewSignalManager(parent context.Context) *SignalManager {
	sm := &SignalManager{}
	sm.ctx, sm.cancel = signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return sm
}

// Context is cancelled when a signal arrives or Stop is called.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop releases the signal listener.
func (sm *SignalManager) Stop() {
	sm.cancel()
}

// CheckRace waits briefly for a cancellation that may trail a read error.
// On some terminals Ctrl+C closes stdin slightly before the signal is
// delivered, and the EOF should be reported as an interrupt.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() != nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}
}
