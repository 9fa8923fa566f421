package workers

import (
	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingConn struct {
	id     string
	mu     sync.Mutex
	frames []domain.MessageView
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: uuid.NewString()}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(payload []byte) error {
	var view domain.MessageView
	if err := json.Unmarshal(payload, &view); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, view)
	return nil
}

func (c *recordingConn) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	texts := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		texts = append(texts, f.Text)
	}
	return texts
}

type listenerFixture struct {
	bus       *bus.MemoryBus
	registry  *runtime.Registry
	listeners *runtime.Listeners
	monitor   *observability.MonitoringManager
}

func newListenerFixture(t *testing.T, backoff time.Duration) listenerFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := listenerFixture{
		bus:      bus.NewMemoryBus(log),
		registry: runtime.NewRegistry(log),
		monitor:  observability.NewMonitoringManager(log),
	}
	sup := NewSupervisor(log, backoff).OnRestart(func(string, error) { f.monitor.IncrListenerRestarts() })
	f.listeners = runtime.NewListeners(ctx, log, sup, f.registry,
		func(roomID domain.RoomID, h *runtime.ListenerHandle) contract.Worker {
			return NewRoomListener(roomID, h, f.bus, f.registry, f.monitor, log)
		})
	return f
}

func publishText(t *testing.T, b bus.IBus, roomID domain.RoomID, sender domain.UserID, text string) {
	t.Helper()
	view := domain.MessageView{Text: text, UserID: sender}
	require.NoError(t, b.Publish(context.Background(), roomID, domain.NewMessageEvent(roomID, view)))
}

func waitReady(t *testing.T, h *runtime.ListenerHandle) {
	t.Helper()
	select {
	case <-h.Ready():
	case <-time.After(time.Second):
		t.Fatal("listener never confirmed its subscription")
	}
}

func TestRoomListener_DeliversLiveMessages(t *testing.T) {
	req := require.New(t)
	f := newListenerFixture(t, 50*time.Millisecond)
	roomID := domain.RoomID(7)

	// Given two connections in the room and a running listener
	a, b := newRecordingConn(), newRecordingConn()
	f.registry.Register(roomID, a)
	f.registry.Register(roomID, b)
	waitReady(t, f.listeners.Ensure(roomID))

	// When two messages are published
	publishText(t, f.bus, roomID, 1, "hello")
	publishText(t, f.bus, roomID, 2, "hi")

	// Then both connections receive them in publish order, tagged as live frames
	req.Eventually(func() bool { return len(a.texts()) == 2 && len(b.texts()) == 2 }, time.Second, 5*time.Millisecond)
	req.Equal([]string{"hello", "hi"}, a.texts())
	req.Equal([]string{"hello", "hi"}, b.texts())
	a.mu.Lock()
	req.Equal(domain.ChatMessageType, a.frames[0].Type)
	a.mu.Unlock()
}

func TestRoomListener_ResumesAfterSubscriptionLoss(t *testing.T) {
	req := require.New(t)
	f := newListenerFixture(t, 100*time.Millisecond)
	roomID := domain.RoomID(3)
	conn := newRecordingConn()
	f.registry.Register(roomID, conn)
	waitReady(t, f.listeners.Ensure(roomID))

	publishText(t, f.bus, roomID, 1, "before")
	req.Eventually(func() bool { return len(conn.texts()) == 1 }, time.Second, 5*time.Millisecond)

	// When the broker connection drops mid-stream
	f.bus.Disconnect()

	// Then the listener is restarted after the backoff and delivery resumes
	req.Eventually(func() bool {
		return f.bus.Subscribers(bus.RoomChannel(roomID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	publishText(t, f.bus, roomID, 1, "after")
	req.Eventually(func() bool { return len(conn.texts()) == 2 }, time.Second, 5*time.Millisecond)
	req.Equal([]string{"before", "after"}, conn.texts())
	req.Equal(uint64(1), f.monitor.GetLatest().ListenerRestarts)

	// And there is still one listener for the room
	req.Equal(1, f.listeners.Len())
}

func TestRoomListener_TerminatesWhenRoomEmpties(t *testing.T) {
	req := require.New(t)
	f := newListenerFixture(t, 50*time.Millisecond)
	roomID := domain.RoomID(9)
	conn := newRecordingConn()
	f.registry.Register(roomID, conn)
	h := f.listeners.Ensure(roomID)
	waitReady(t, h)

	// Given the last connection left without stopping the listener
	f.registry.Unregister(roomID, conn)

	// When the next event reaches the listener
	publishText(t, f.bus, roomID, 1, "nobody listens")

	// Then the listener deregisters itself and releases its subscription
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		req.Fail("listener should terminate once the room is empty")
	}
	req.Equal(0, f.listeners.Len())
	req.Eventually(func() bool {
		return f.bus.Subscribers(bus.RoomChannel(roomID)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRoomListener_StopIfEmptyReleasesSubscription(t *testing.T) {
	req := require.New(t)
	f := newListenerFixture(t, 50*time.Millisecond)
	roomID := domain.RoomID(11)
	conn := newRecordingConn()
	f.registry.Register(roomID, conn)
	h := f.listeners.Ensure(roomID)
	waitReady(t, h)

	// When the last connection disconnects
	req.True(f.registry.Unregister(roomID, conn))
	req.True(f.listeners.StopIfEmpty(roomID))

	// Then the subscription is released promptly
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		req.Fail("listener should stop promptly")
	}
	req.Eventually(func() bool {
		return f.bus.Subscribers(bus.RoomChannel(roomID)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRoomListener_SubscribeFailureIsRetried(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	b := mocks.NewMockIBus(ctrl)
	lease := mocks.NewMockListenerLease(ctrl)

	// Given a bus refusing the subscription
	b.EXPECT().Subscribe(gomock.Any(), bus.RoomChannel(5)).Return(nil, errors.ErrSubscriptionLost)

	w := NewRoomListener(5, lease, b, runtime.NewRegistry(log), observability.NewMonitoringManager(log), log)

	// When the listener runs
	err := w.Run(context.Background())

	// Then it reports the failure to its supervisor without marking itself ready
	req.ErrorIs(err, errors.ErrSubscriptionLost)
}
