package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/promptflow/pkg/ports"
)

// Locker implements ports.DistributedLocker inside one process. Leases
// expire after their ttl like the Redis locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]*lease
}

type lease struct {
	released chan struct{}
	timer    *time.Timer
}

// NewLocker creates a locker with no held keys.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]*lease)}
}

// Lock waits for key to be free, then holds it until unlocked or expired.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	for {
		l.mu.Lock()
		cur, busy := l.held[key]
		if !busy {
			ls := &lease{released: make(chan struct{})}
			l.held[key] = ls
			if ttl > 0 {
				ls.timer = time.AfterFunc(ttl, func() { l.release(key, ls) })
			}
			l.mu.Unlock()
			return func(context.Context) error {
				l.release(key, ls)
				return nil
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-cur.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) release(key string, ls *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != ls {
		return
	}
	delete(l.held, key)
	if ls.timer != nil {
		ls.timer.Stop()
	}
	close(ls.released)
}
