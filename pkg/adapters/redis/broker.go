package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/promptflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Broker implements ports.InputChannel over Redis pub/sub, so the process
// answering an input request need not be the one running the job.
type Broker struct {
	client *backend.Client
	opts   options
}

// NewBroker creates a broker on an existing client.
func NewBroker(client *backend.Client, opts ...Option) *Broker {
	return &Broker{client: client, opts: newOptions(opts)}
}

func (b *Broker) channel(key string) string { return b.opts.prefix + "input:" + key }

// Publish sends value to the subscribers of key.
func (b *Broker) Publish(ctx context.Context, key, value string) error {
	if err := b.client.Publish(ctx, b.channel(key), value).Err(); err != nil {
		return fmt.Errorf("failed to publish input: %w", err)
	}
	return nil
}

// Subscribe returns once the server confirmed the subscription.
func (b *Broker) Subscribe(ctx context.Context, key string) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(key))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to input: %w", err)
	}
	return &subscription{ps: ps, msgs: ps.Channel()}, nil
}

type subscription struct {
	ps   *backend.PubSub
	msgs <-chan *backend.Message
}

func (s *subscription) Await(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return "", errors.New("input subscription closed")
		}
		return msg.Payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
