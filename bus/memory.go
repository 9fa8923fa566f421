package bus

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
)

// MemoryBus is a single-process bus. Patterns use glob matching like Redis PSUBSCRIBE.
// Delivery is at most once: a subscriber whose buffer is full misses the event.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[int]*memorySub
	nextID  int
	closed  bool
	dropped uint64
	log     *slog.Logger
}

type memorySub struct {
	pattern string
	ch      chan Delivery
	done    chan struct{}
	once    sync.Once
}

func NewMemoryBus(log *slog.Logger) *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySub), log: log}
}

var _ IBus = (*MemoryBus)(nil)

// Publish never waits on a subscriber.
func (b *MemoryBus) Publish(ctx context.Context, roomID domain.RoomID, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	channel := RoomChannel(roomID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.ch <- Delivery{Channel: channel, RoomID: roomID, Event: event}:
		default:
			atomic.AddUint64(&b.dropped, 1)
			b.log.Warn("Subscriber buffer full, event dropped",
				"channel", channel, "pattern", sub.pattern, "type", event.Type)
		}
	}
	return nil
}

// Dropped counts events lost to full subscriber buffers.
func (b *MemoryBus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

func (b *MemoryBus) Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.ErrSubscriptionLost
	}
	id := b.nextID
	b.nextID++
	sub := &memorySub{
		pattern: pattern,
		ch:      make(chan Delivery, deliveryBufferSize),
		done:    make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.drop(id, sub)
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

// drop closes the channel under the write lock, so it never races a send.
func (b *MemoryBus) drop(id int, sub *memorySub) {
	sub.once.Do(func() {
		close(sub.done)
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.ch)
	})
}

// Disconnect drops every live subscription as a broker connection loss would.
func (b *MemoryBus) Disconnect() {
	b.mu.RLock()
	subs := make(map[int]*memorySub, len(b.subs))
	for id, sub := range b.subs {
		subs[id] = sub
	}
	b.mu.RUnlock()
	for id, sub := range subs {
		b.drop(id, sub)
	}
}

// Subscribers counts live subscriptions whose pattern matches channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, channel); ok {
			n++
		}
	}
	return n
}

func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.ErrSubscriptionLost
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Disconnect()
	return nil
}
