package ws

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	sendFailedText  = "message could not be delivered"
	rateLimitedText = "message rate limit exceeded"
)

// ServeChat runs the chat session of one client with one peer:
// authenticate, resolve the peer, join the room, replay history, then relay frames.
func (s *Server) ServeChat(w http.ResponseWriter, r *http.Request) {
	peerID, err := strconv.ParseInt(chi.URLParam(r, "peerID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid peer id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	ctx := s.base

	self, err := s.authenticate(ctx, conn)
	if err != nil {
		s.log.Info("WebSocket authentication failed", "error", err)
		rejectConnection(conn, websocket.ClosePolicyViolation, s.log)
		return
	}
	log := s.log.With("user_id", self.ID, "peer_id", peerID)

	if domain.UserID(peerID) == self.ID {
		log.Info("Chat with oneself refused")
		rejectConnection(conn, websocket.ClosePolicyViolation, log)
		return
	}
	peer, err := s.users.GetUserWithProfile(ctx, domain.UserID(peerID))
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, errors.ErrPeerNotFound) {
			code = websocket.ClosePolicyViolation
		}
		log.Info("Unable to resolve peer", "error", err)
		rejectConnection(conn, code, log)
		return
	}

	room, err := s.chat.GetOrCreateRoom(ctx, self.ID, peer.ID)
	if err != nil {
		log.Error("Unable to join room", "error", err)
		rejectConnection(conn, websocket.CloseInternalServerErr, log)
		return
	}
	log = log.With("room_id", room.ID)

	c := NewConnection(conn, s.config.BufferSize, log)
	s.registry.Register(room.ID, c)
	s.monitor.ConnectionOpened()
	defer s.leave(room.ID, c)

	s.awaitListener(ctx, room.ID, log)
	c.Start(s.historyFrame(ctx, room, self, peer, log))
	go closeOnShutdown(ctx, c)

	c.setupRead(s.config.MaxFrameBytes)
	limiter := rate.NewLimiter(rate.Limit(s.config.RateLimitPerSecond), s.config.RateLimitBurst)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			readError(err, log)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			s.monitor.IncrRateLimited()
			log.Warn("Inbound frame dropped by rate limit")
			s.sendError(c, rateLimitedText, log)
			continue
		}
		if _, err := s.chat.SendMessage(ctx, room, self, string(data)); err != nil {
			if errors.Is(err, errors.ErrBlankMessage) {
				continue
			}
			log.Warn("Unable to send message", "error", err)
			s.sendError(c, sendFailedText, log)
		}
	}
}

// ServeChatList streams chat_update frames about the rooms of the authenticated user.
// Inbound frames are read only to detect the disconnect.
func (s *Server) ServeChatList(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	ctx := s.base

	self, err := s.authenticate(ctx, conn)
	if err != nil {
		s.log.Info("WebSocket authentication failed", "error", err)
		rejectConnection(conn, websocket.ClosePolicyViolation, s.log)
		return
	}
	log := s.log.With("user_id", self.ID)

	c := NewConnection(conn, s.config.BufferSize, log)
	s.hub.Add(self.ID, c)
	s.monitor.ConnectionOpened()
	defer func() {
		s.hub.Remove(c)
		c.Close(websocket.CloseNormalClosure, "")
		s.monitor.ConnectionClosed()
	}()

	c.Start(nil)
	go closeOnShutdown(ctx, c)

	c.setupRead(s.config.MaxFrameBytes)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			readError(err, log)
			return
		}
	}
}

// authenticate reads the first text frame as the access token.
func (s *Server) authenticate(ctx context.Context, conn *websocket.Conn) (domain.Identity, error) {
	conn.SetReadLimit(s.config.MaxFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(s.config.AuthTimeout)); err != nil {
		return domain.Identity{}, err
	}
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}
	if messageType != websocket.TextMessage {
		return domain.Identity{}, fmt.Errorf("%w: token must be a text frame", errors.ErrUnauthorized)
	}
	return s.auth.GetUser(ctx, strings.TrimSpace(string(data)))
}

// awaitListener makes sure the room listener is subscribed before history is replayed,
// so nothing published after the join is missed.
func (s *Server) awaitListener(ctx context.Context, roomID domain.RoomID, log *slog.Logger) {
	if s.listeners == nil {
		return
	}
	handle := s.listeners.Ensure(roomID)
	timer := time.NewTimer(s.config.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-handle.Ready():
	case <-timer.C:
		log.Warn("Joining before the room listener is ready", "error", errors.ErrListenerNotReady)
	case <-ctx.Done():
	}
}

// historyFrame is the first frame of a chat session: the recent messages, newest first.
func (s *Server) historyFrame(ctx context.Context, room domain.Room, self, peer domain.Identity, log *slog.Logger) []byte {
	views, err := s.chat.History(ctx, room, self, peer)
	if err != nil {
		log.Error("Unable to load history", "error", err)
		return errorFrame("history unavailable")
	}
	if views == nil {
		views = []domain.MessageView{}
	}
	payload, err := json.Marshal(views)
	if err != nil {
		log.Error("Unable to encode history", "error", err)
		return errorFrame("history unavailable")
	}
	return payload
}

func (s *Server) sendError(c *Connection, message string, log *slog.Logger) {
	if err := c.Send(errorFrame(message)); err != nil {
		log.Debug("Unable to send error frame", "error", err)
	}
}

// leave deregisters the connection and stops the room listener once the room is empty.
func (s *Server) leave(roomID domain.RoomID, c *Connection) {
	if s.registry.Unregister(roomID, c) && s.listeners != nil {
		s.listeners.StopIfEmpty(roomID)
	}
	c.Close(websocket.CloseNormalClosure, "")
	s.monitor.ConnectionClosed()
}

func closeOnShutdown(ctx context.Context, c *Connection) {
	select {
	case <-ctx.Done():
		c.Close(websocket.CloseGoingAway, "server shutting down")
	case <-c.Done():
	}
}

func errorFrame(message string) []byte {
	payload, _ := json.Marshal(domain.ErrorFrame{Type: domain.ErrorType, Message: message})
	return payload
}
