package bus

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes with PUBLISH and listens with SUBSCRIBE or PSUBSCRIBE.
// go-redis re-establishes dropped pub/sub connections by itself; messages
// published during the gap are lost, as with any fire-and-forget channel.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBus(client *redis.Client, log *slog.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

var _ IBus = (*RedisBus)(nil)

func (b *RedisBus) Publish(ctx context.Context, roomID domain.RoomID, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, RoomChannel(roomID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error) {
	var ps *redis.PubSub
	if isPattern(pattern) {
		ps = b.client.PSubscribe(ctx, pattern)
	} else {
		ps = b.client.Subscribe(ctx, pattern)
	}
	// Wait for the confirmation so nothing published afterwards is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrSubscriptionLost, err)
	}

	messages := ps.Channel()
	out := make(chan Delivery, deliveryBufferSize)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				delivery, err := decode(msg.Channel, []byte(msg.Payload))
				if err != nil {
					b.log.Warn("Dropping undecodable event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return nil
}
