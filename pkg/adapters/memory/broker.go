package memory

import (
	"context"
	"sync"

	"github.com/aretw0/promptflow/pkg/ports"
)

// Broker implements ports.InputChannel with in-process fan-out.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

// Publish delivers value to every current subscriber of key.
func (b *Broker) Publish(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[key] {
		select {
		case s.ch <- value:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on key.
func (b *Broker) Subscribe(_ context.Context, key string) (ports.Subscription, error) {
	s := &subscription{broker: b, key: key, ch: make(chan string, 16)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*subscription]struct{})
	}
	b.subs[key][s] = struct{}{}
	return s, nil
}

type subscription struct {
	broker *Broker
	key    string
	ch     chan string
}

func (s *subscription) Await(ctx context.Context) (string, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *subscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.key], s)
	if len(b.subs[s.key]) == 0 {
		delete(b.subs, s.key)
	}
	return nil
}
