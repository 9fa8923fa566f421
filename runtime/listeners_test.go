package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// blockingWorker runs until its context is canceled.
type blockingWorker struct {
	started chan context.Context
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.started <- ctx
	<-ctx.Done()
	return nil
}

func newSupervisorMock(t *testing.T) *mocks.MockISupervisor {
	ctrl := gomock.NewController(t)
	sup := mocks.NewMockISupervisor(ctrl)
	sup.EXPECT().
		Start(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, worker contract.Worker) <-chan struct{} {
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = worker.Run(ctx)
			}()
			return done
		}).
		AnyTimes()
	return sup
}

func TestListeners_Ensure_Starts_Only_One_Listener(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	worker := &blockingWorker{started: make(chan context.Context, 4)}
	factoryCalls := 0
	listeners := NewListeners(context.Background(), slog.Default(), newSupervisorMock(t), registry,
		func(roomID domain.RoomID, h *ListenerHandle) contract.Worker {
			factoryCalls++
			return worker
		})

	// When two sessions of the same room ensure a listener
	h1 := listeners.Ensure(1)
	h2 := listeners.Ensure(1)

	// Then a single listener exists
	req.Same(h1, h2)
	req.Equal(1, factoryCalls)
	req.Equal(1, listeners.Len())
}

func TestListeners_StopIfEmpty_Only_When_Room_Is_Empty(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	worker := &blockingWorker{started: make(chan context.Context, 1)}
	listeners := NewListeners(context.Background(), slog.Default(), newSupervisorMock(t), registry,
		func(domain.RoomID, *ListenerHandle) contract.Worker { return worker })

	conn := newFakeConn()
	registry.Register(1, conn)
	h := listeners.Ensure(1)
	workerCtx := <-worker.started

	// Given a connection is still in the room, nothing stops
	req.False(listeners.StopIfEmpty(1))
	req.NoError(workerCtx.Err())

	// When the last connection leaves
	registry.Unregister(1, conn)
	req.True(listeners.StopIfEmpty(1))

	// Then the listener context is canceled and the handle forgotten
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		req.Fail("listener did not stop")
	}
	req.Error(workerCtx.Err())
	req.Equal(0, listeners.Len())
}

func TestListeners_ReleaseIfEmpty(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	worker := &blockingWorker{started: make(chan context.Context, 2)}
	listeners := NewListeners(context.Background(), slog.Default(), newSupervisorMock(t), registry,
		func(domain.RoomID, *ListenerHandle) contract.Worker { return worker })

	conn := newFakeConn()
	registry.Register(1, conn)
	h := listeners.Ensure(1)
	<-worker.started

	// A room with a connection keeps its listener
	req.False(listeners.ReleaseIfEmpty(1, h))

	// An empty room releases it
	registry.Unregister(1, conn)
	req.True(listeners.ReleaseIfEmpty(1, h))
	_, ok := listeners.Get(1)
	req.False(ok)

	// A rejoin afterwards gets a fresh listener
	registry.Register(1, conn)
	h2 := listeners.Ensure(1)
	req.NotSame(h, h2)

	// And the stale handle is told to stop
	req.True(listeners.ReleaseIfEmpty(1, h))
}

func TestListenerHandle_MarkReady_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	h := &ListenerHandle{ready: make(chan struct{})}

	h.MarkReady()
	h.MarkReady()

	select {
	case <-h.Ready():
	default:
		req.Fail("handle not ready")
	}
}

func TestChatListHub_BroadcastTo_Targets_Users(t *testing.T) {
	req := require.New(t)
	hub := NewChatListHub(slog.Default())
	alice, bob, broken := newFakeConn(), newFakeConn(), newFakeConn()
	broken.broken = true
	hub.Add(1, alice)
	hub.Add(2, bob)
	hub.Add(1, broken)

	delivered := hub.BroadcastTo([]byte("update"), 1, 3)

	req.Equal(1, delivered)
	req.Len(alice.received(), 1)
	req.Empty(bob.received())
	// broken connection pruned
	req.Equal(2, hub.Len())
}
