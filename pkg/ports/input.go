package ports

import "context"

// Subscription receives the values published on one key.
type Subscription interface {
	// Await blocks until the next value arrives or ctx is done.
	Await(ctx context.Context) (string, error)
	Close() error
}

// InputChannel carries values from the caller that answers an input
// request to the job waiting for it. Values published while nobody is
// subscribed are dropped.
type InputChannel interface {
	Publish(ctx context.Context, key, value string) error
	Subscribe(ctx context.Context, key string) (Subscription, error)
}

// InputKey is the channel key on which a job receives its input.
func InputKey(jobID string) string {
	return jobID + "/input"
}

// AwaitFirst subscribes to key, calls ready once the subscription is live
// and returns the first value published afterwards. Announcing readiness
// only after subscribing means a prompt answer can never be lost.
func AwaitFirst(ctx context.Context, ch InputChannel, key string, ready func(context.Context) error) (string, error) {
	sub, err := ch.Subscribe(ctx, key)
	if err != nil {
		return "", err
	}
	defer sub.Close()

	if ready != nil {
		if err := ready(ctx); err != nil {
			return "", err
		}
	}
	return sub.Await(ctx)
}
