package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"log/slog"
	"sync"
)

type chatListMember struct {
	userID domain.UserID
	conn   contract.Conn
}

// ChatListHub holds the chat-list connections, kept apart from the room registry.
type ChatListHub struct {
	mu      sync.RWMutex
	members map[string]chatListMember
	log     *slog.Logger
}

func NewChatListHub(log *slog.Logger) *ChatListHub {
	return &ChatListHub{members: make(map[string]chatListMember), log: log}
}

func (h *ChatListHub) Add(userID domain.UserID, conn contract.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[conn.ID()] = chatListMember{userID: userID, conn: conn}
}

func (h *ChatListHub) Remove(conn contract.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, conn.ID())
}

// Broadcast sends payload to every chat-list connection.
func (h *ChatListHub) Broadcast(payload []byte) int {
	h.mu.RLock()
	targets := make([]contract.Conn, 0, len(h.members))
	for _, m := range h.members {
		targets = append(targets, m.conn)
	}
	h.mu.RUnlock()
	return h.send(targets, payload)
}

// BroadcastTo sends payload to the chat-list connections of the given users.
func (h *ChatListHub) BroadcastTo(payload []byte, userIDs ...domain.UserID) int {
	wanted := make(map[domain.UserID]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	h.mu.RLock()
	var targets []contract.Conn
	for _, m := range h.members {
		if _, ok := wanted[m.userID]; ok {
			targets = append(targets, m.conn)
		}
	}
	h.mu.RUnlock()
	return h.send(targets, payload)
}

// send delivers to every target and prunes the connections whose send fails.
func (h *ChatListHub) send(targets []contract.Conn, payload []byte) int {
	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			h.log.Debug("Pruning chat-list connection after failed send", "conn_id", conn.ID())
			h.Remove(conn)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *ChatListHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
