package bus

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes the envelopes of every process on a single Redis channel.
// Redis pub/sub delivers to every subscriber, the publishing process included.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func NewRedisBus(client *redis.Client, channel string, log *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, e event.Event) error {
	data, err := Encode(e)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPublish, err)
	}
	if err = b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPublish, err)
	}
	return nil
}

// Subscribe confirms the subscription with Redis then starts the receive loop.
// Once subscribed, later calls are no-ops. A failed attempt can be retried.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(ctx context.Context, e event.Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrBusClosed
	}
	if b.pubsub != nil {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.pubsub = pubsub
	b.log.Info("Subscribed to bus", "channel", b.channel)

	go b.receive(ctx, pubsub, handler)
	return nil
}

// receive runs for the lifetime of the subscription.
// go-redis reconnects the underlying connection on its own.
func (b *RedisBus) receive(ctx context.Context, pubsub *redis.PubSub, handler func(ctx context.Context, e event.Event)) {
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.release(pubsub)
			return
		case msg, ok := <-messages:
			if !ok {
				b.release(pubsub)
				return
			}
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("Dropping undecodable event", "channel", msg.Channel, "error", err)
				continue
			}
			handler(ctx, e)
		}
	}
}

func (b *RedisBus) release(pubsub *redis.PubSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == pubsub {
		b.pubsub = nil
	}
	if err := pubsub.Close(); err != nil {
		b.log.Debug("Unable to close subscription", "error", err)
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}
