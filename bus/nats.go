package bus

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsBus maps room channels onto subjects: "chat:room:5:channel" becomes "chat.room.5.channel".
// NATS "*" matches exactly one token, which is what the room pattern needs.
const flushTimeout = 5 * time.Second

type NatsBus struct {
	nc     *nats.Conn
	log    *slog.Logger
	closed chan struct{}
}

func NewNatsBus(url string, log *slog.Logger) (*NatsBus, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(url,
		nats.Name("chat-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return &NatsBus{nc: nc, log: log, closed: closed}, nil
}

var _ IBus = (*NatsBus)(nil)

func toSubject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}

func toChannel(subject string) string {
	return strings.ReplaceAll(subject, ".", ":")
}

func (b *NatsBus) Publish(_ context.Context, roomID domain.RoomID, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(toSubject(RoomChannel(roomID)), payload)
}

func (b *NatsBus) Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error) {
	messages := make(chan *nats.Msg, deliveryBufferSize)
	sub, err := b.nc.ChanSubscribe(toSubject(pattern), messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSubscriptionLost, err)
	}
	// Flush round-trips to the server, so the subscription is registered on return.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err = b.nc.FlushWithContext(flushCtx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %w", errors.ErrSubscriptionLost, err)
	}

	out := make(chan Delivery, deliveryBufferSize)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			case msg := <-messages:
				delivery, err := decode(toChannel(msg.Subject), msg.Data)
				if err != nil {
					b.log.Warn("Dropping undecodable event", "subject", msg.Subject, "error", err)
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

func (b *NatsBus) Ping(_ context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats: status %s", b.nc.Status())
	}
	return nil
}

func (b *NatsBus) Close() error {
	return b.nc.Drain()
}
