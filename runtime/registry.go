package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"log/slog"
	"sync"
)

// roomSet is the set of live connections of one room.
// A set removed from the registry is marked dead so a concurrent Register retries.
type roomSet struct {
	mu    sync.Mutex
	conns map[string]contract.Conn
	dead  bool
}

// Registry maps rooms to their live connections in this process.
// The outer lock only guards the room map; membership changes and sends
// of one room never block another room.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*roomSet
	log     *slog.Logger
	onPrune func(n int)
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]*roomSet),
		log:   log,
	}
}

var _ contract.IRegistry = (*Registry)(nil)

// OnPrune registers a callback receiving the number of connections pruned by a broadcast.
func (r *Registry) OnPrune(fn func(n int)) *Registry {
	r.onPrune = fn
	return r
}

func (r *Registry) lookup(roomID domain.RoomID) *roomSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID domain.RoomID) *roomSet {
	if set := r.lookup(roomID); set != nil {
		return set
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[roomID]
	if !ok {
		set = &roomSet{conns: make(map[string]contract.Conn)}
		r.rooms[roomID] = set
	}
	return set
}

// Register adds the connection to the room, creating the room entry on the fly.
func (r *Registry) Register(roomID domain.RoomID, conn contract.Conn) {
	for {
		set := r.getOrCreate(roomID)
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.conns[conn.ID()] = conn
		set.mu.Unlock()
		return
	}
}

// Unregister removes the connection and reports whether the room is now empty.
// An emptied room entry is removed to prevent memory leaks over time.
func (r *Registry) Unregister(roomID domain.RoomID, conn contract.Conn) bool {
	set := r.lookup(roomID)
	if set == nil {
		return true
	}
	set.mu.Lock()
	delete(set.conns, conn.ID())
	if len(set.conns) > 0 {
		set.mu.Unlock()
		return false
	}
	alreadyDead := set.dead
	set.dead = true
	set.mu.Unlock()

	if !alreadyDead {
		r.mu.Lock()
		if r.rooms[roomID] == set {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
	}
	return true
}

// BroadcastLocal sends payload to every connection of the room and returns how many accepted it.
// Connections whose send fails are pruned; the failure never reaches the caller.
// A failed Send closes its own connection, so pruning only drops the entry.
func (r *Registry) BroadcastLocal(roomID domain.RoomID, payload []byte) int {
	set := r.lookup(roomID)
	if set == nil {
		return 0
	}
	set.mu.Lock()
	snapshot := make([]contract.Conn, 0, len(set.conns))
	for _, conn := range set.conns {
		snapshot = append(snapshot, conn)
	}
	set.mu.Unlock()

	delivered := 0
	var failed []contract.Conn
	for _, conn := range snapshot {
		if err := conn.Send(payload); err != nil {
			failed = append(failed, conn)
			continue
		}
		delivered++
	}
	for _, conn := range failed {
		r.log.Debug("Pruning connection after failed send", "room_id", roomID, "conn_id", conn.ID())
		r.Unregister(roomID, conn)
	}
	if len(failed) > 0 && r.onPrune != nil {
		r.onPrune(len(failed))
	}
	return delivered
}

func (r *Registry) IsEmpty(roomID domain.RoomID) bool {
	return r.Count(roomID) == 0
}

func (r *Registry) Count(roomID domain.RoomID) int {
	set := r.lookup(roomID)
	if set == nil {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.conns)
}

// Rooms returns the number of rooms with at least one live connection.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
