package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
)

// ListenerHandle tracks the room listener of one room in this process.
type ListenerHandle struct {
	RoomID domain.RoomID

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	done      <-chan struct{}
	owner     *Listeners
}

var _ contract.ListenerLease = (*ListenerHandle)(nil)

// Ready is closed once the listener's first subscription is confirmed.
func (h *ListenerHandle) Ready() <-chan struct{} {
	return h.ready
}

func (h *ListenerHandle) MarkReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Release deregisters the handle when the room has no local connection left.
func (h *ListenerHandle) Release() bool {
	return h.owner.ReleaseIfEmpty(h.RoomID, h)
}

// Done is closed when the supervised listener goroutine has exited.
func (h *ListenerHandle) Done() <-chan struct{} {
	return h.done
}

// ListenerFactory builds the worker that serves one room.
type ListenerFactory func(roomID domain.RoomID, handle *ListenerHandle) contract.Worker

// Listeners is the per-process table of room listeners.
// Every check-and-insert and every check-and-remove happens under one lock,
// together with the registry emptiness check, so a room never ends up with
// live connections and no listener.
type Listeners struct {
	mu       sync.Mutex
	handles  map[domain.RoomID]*ListenerHandle
	base     context.Context
	log      *slog.Logger
	sup      contract.ISupervisor
	registry contract.IRegistry
	factory  ListenerFactory
}

// NewListeners roots every listener in base, usually the server context.
func NewListeners(base context.Context, log *slog.Logger, sup contract.ISupervisor,
	registry contract.IRegistry, factory ListenerFactory) *Listeners {
	return &Listeners{
		handles:  make(map[domain.RoomID]*ListenerHandle),
		base:     base,
		log:      log,
		sup:      sup,
		registry: registry,
		factory:  factory,
	}
}

// Ensure starts the room listener unless one is already running and returns its handle.
func (l *Listeners) Ensure(roomID domain.RoomID) *ListenerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[roomID]; ok {
		return h
	}
	ctx, cancel := context.WithCancel(l.base)
	h := &ListenerHandle{
		RoomID: roomID,
		ready:  make(chan struct{}),
		cancel: cancel,
		owner:  l,
	}
	l.handles[roomID] = h
	h.done = l.sup.Start(ctx, l.factory(roomID, h))
	l.log.Debug("Room listener started", "room_id", roomID)

	go func() {
		<-h.done
		cancel()
		l.forget(roomID, h)
	}()
	return h
}

// ReleaseIfEmpty is called by a listener after a delivery. It reports whether
// the listener must terminate: the room has no local connection left, or the
// handle no longer belongs to the table.
func (l *Listeners) ReleaseIfEmpty(roomID domain.RoomID, h *ListenerHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handles[roomID] != h {
		return true
	}
	if !l.registry.IsEmpty(roomID) {
		return false
	}
	delete(l.handles, roomID)
	h.cancel()
	l.log.Debug("Room listener released", "room_id", roomID)
	return true
}

// StopIfEmpty cancels the room listener when no local connection is left.
func (l *Listeners) StopIfEmpty(roomID domain.RoomID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[roomID]
	if !ok || !l.registry.IsEmpty(roomID) {
		return false
	}
	delete(l.handles, roomID)
	h.cancel()
	l.log.Debug("Room listener stopped", "room_id", roomID)
	return true
}

func (l *Listeners) forget(roomID domain.RoomID, h *ListenerHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handles[roomID] == h {
		delete(l.handles, roomID)
	}
}

func (l *Listeners) Get(roomID domain.RoomID) (*ListenerHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[roomID]
	return h, ok
}

func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}
