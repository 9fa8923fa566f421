package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	broken bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.ErrConnectionClosed
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func TestRegistry_Register_And_Broadcast(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	roomID := domain.RoomID(1)
	c1, c2, other := newFakeConn(), newFakeConn(), newFakeConn()

	// Given no room exists
	req.True(registry.IsEmpty(roomID))

	// When two connections join the room and one joins another room
	registry.Register(roomID, c1)
	registry.Register(roomID, c2)
	registry.Register(2, other)

	// Then a local broadcast reaches exactly the room members
	req.Equal(2, registry.BroadcastLocal(roomID, []byte("hello")))
	req.Equal([][]byte{[]byte("hello")}, c1.received())
	req.Equal([][]byte{[]byte("hello")}, c2.received())
	req.Empty(other.received())
	req.Equal(2, registry.Count(roomID))
}

func TestRegistry_Unregister_Removes_Empty_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	c1, c2 := newFakeConn(), newFakeConn()
	registry.Register(1, c1)
	registry.Register(1, c2)

	req.False(registry.Unregister(1, c1))
	req.True(registry.Unregister(1, c2))

	// Then the room doesn't exist anymore
	req.Equal(0, registry.Rooms())
	req.True(registry.IsEmpty(1))

	// And removing an unknown connection is harmless
	req.True(registry.Unregister(1, c1))
}

func TestRegistry_Broadcast_Prunes_Failed_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	healthy, broken := newFakeConn(), newFakeConn()
	broken.broken = true
	registry.Register(1, healthy)
	registry.Register(1, broken)

	// When a broadcast hits a broken connection
	delivered := registry.BroadcastLocal(1, []byte("x"))

	// Then the healthy one still receives it and the broken one is gone
	req.Equal(1, delivered)
	req.Len(healthy.received(), 1)
	req.Equal(1, registry.Count(1))
}

func TestRegistry_Broadcast_All_Failed_Empties_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	broken := newFakeConn()
	broken.broken = true
	registry.Register(1, broken)

	req.Equal(0, registry.BroadcastLocal(1, []byte("x")))
	req.True(registry.IsEmpty(1))
	req.Equal(0, registry.Rooms())
}

func TestRegistry_Concurrent_Join_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	stayers := make([]*fakeConn, 10)
	for i := range stayers {
		stayers[i] = newFakeConn()
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Register(domain.RoomID(i%3), stayers[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			transient := newFakeConn()
			roomID := domain.RoomID(i % 3)
			registry.Register(roomID, transient)
			registry.BroadcastLocal(roomID, []byte(fmt.Sprintf("m%d", i)))
			registry.Unregister(roomID, transient)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 3; i++ {
		total += registry.Count(domain.RoomID(i))
	}
	req.Equal(10, total)
}
