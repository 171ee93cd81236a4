// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Redis publishes with Redis PUBLISH so any process subscribed to the
// agentnet:* channels sees the events.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps a Redis client. Close does not close the client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Publish implements Publisher.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.New(errors.CodeStoreError, "redis publish", err).WithRecoverable(true)
	}
	return nil
}

// Subscribe streams messages matching the given channel patterns until ctx
// is done.
func (r *Redis) Subscribe(ctx context.Context, patterns ...string) (<-chan Message, error) {
	sub := r.client.PSubscribe(ctx, patterns...)
	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.New(errors.CodeStoreError, "redis subscribe", err)
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Publisher.
func (r *Redis) Close() error { return nil }

var _ Publisher = (*Redis)(nil)
