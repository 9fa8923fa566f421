package services

import (
	"chat-relay/bus"
	"chat-relay/cache"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/events"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"
)

type IChatService interface {
	GetOrCreateRoom(ctx context.Context, senderID, recipientID domain.UserID) (domain.Room, error)
	GetMessagesForRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)
	AddMessageToRoom(ctx context.Context, roomID domain.RoomID, sender domain.Identity, text string) (domain.Message, error)
	SendMessage(ctx context.Context, room domain.Room, sender domain.Identity, text string) (domain.Message, error)
	History(ctx context.Context, room domain.Room, self, peer domain.Identity) ([]domain.MessageView, error)
	GetUserChatList(ctx context.Context, userID domain.UserID) ([]domain.ChatItem, error)
}

type ChatConfig struct {
	RetentionLimit int
	HistoryLimit   int
	MaxTextLength  int
}

func (c ChatConfig) withDefaults() ChatConfig {
	if c.RetentionLimit <= 0 {
		c.RetentionLimit = domain.RetentionLimit
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > c.RetentionLimit {
		c.HistoryLimit = c.RetentionLimit
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = domain.MaxTextLength
	}
	return c
}

// ChatService persists messages and fans them out.
// A broadcast only ever follows a successful append.
type ChatService struct {
	messages  repositories.IMessageRepository
	rooms     repositories.IRoomRepository
	users     repositories.IUserRepository
	cache     cache.IRecentMessageCache
	bus       bus.IBus
	moderator *moderation.Moderator
	exporter  events.MessageExporter
	monitor   *observability.MonitoringManager
	config    ChatConfig
	log       *slog.Logger
}

func NewChatService(
	messages repositories.IMessageRepository,
	rooms repositories.IRoomRepository,
	users repositories.IUserRepository,
	recent cache.IRecentMessageCache,
	b bus.IBus,
	monitor *observability.MonitoringManager,
	config ChatConfig,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		messages: messages,
		rooms:    rooms,
		users:    users,
		cache:    recent,
		bus:      b,
		exporter: events.NoopExporter{},
		monitor:  monitor,
		config:   config.withDefaults(),
		log:      log,
	}
}

// WithModerator masks blacklisted words before messages are persisted.
func (s *ChatService) WithModerator(m *moderation.Moderator) *ChatService {
	s.moderator = m
	return s
}

func (s *ChatService) WithExporter(e events.MessageExporter) *ChatService {
	s.exporter = e
	return s
}

func (s *ChatService) GetOrCreateRoom(ctx context.Context, senderID, recipientID domain.UserID) (domain.Room, error) {
	room, created, err := s.rooms.GetOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return domain.Room{}, err
	}
	if created {
		s.log.Info("Room created", "room_id", room.ID, "sender_id", senderID, "recipient_id", recipientID)
	}
	return room, nil
}

// GetMessagesForRoom lists the most recent messages of the room, newest first.
func (s *ChatService) GetMessagesForRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}
	return s.messages.ListRecent(ctx, roomID, limit, repositories.NewestFirst)
}

// AddMessageToRoom appends the message then enforces retention.
// Retention is best-effort: it deletes the oldest message once and drops the cached list.
func (s *ChatService) AddMessageToRoom(ctx context.Context, roomID domain.RoomID, sender domain.Identity, text string) (domain.Message, error) {
	message, err := s.messages.Append(ctx, roomID, sender, text)
	if err != nil {
		return domain.Message{}, err
	}
	s.monitor.IncrMessagesPersisted()

	count, err := s.messages.Count(ctx, roomID)
	if err != nil {
		s.log.Warn("Unable to count messages for retention", "room_id", roomID, "error", err)
	} else if count > s.config.RetentionLimit {
		if _, err := s.messages.DeleteOldest(ctx, roomID); err != nil {
			s.log.Warn("Unable to evict oldest message", "room_id", roomID, "error", err)
		}
		if err := s.cache.Invalidate(ctx, roomID); err != nil {
			s.monitor.IncrCacheErrors()
			s.log.Debug("Unable to invalidate cached messages", "room_id", roomID, "error", err)
		}
	}

	if err := s.exporter.Export(ctx, message); err != nil {
		s.log.Warn("Unable to export message", "room_id", roomID, "error", err)
	}
	return message, nil
}

// SendMessage handles one chat frame: blank text is rejected with ErrBlankMessage,
// anything else is truncated, optionally censored, persisted, published as a
// chat_message then a chat_update, and prepended to the cached list if one exists.
func (s *ChatService) SendMessage(ctx context.Context, room domain.Room, sender domain.Identity, text string) (domain.Message, error) {
	if domain.IsBlank(text) {
		return domain.Message{}, errors.ErrBlankMessage
	}
	text = domain.Truncate(text, s.config.MaxTextLength)
	if s.moderator != nil {
		text, _ = s.moderator.Censor(text)
	}

	message, err := s.AddMessageToRoom(ctx, room.ID, sender, text)
	if err != nil {
		return domain.Message{}, err
	}

	view := domain.ToView(message, sender.AvatarURL)
	if err := s.bus.Publish(ctx, room.ID, domain.NewMessageEvent(room.ID, view)); err != nil {
		return message, fmt.Errorf("%w: %w", errors.ErrBusUnavailable, err)
	}
	if err := s.bus.Publish(ctx, room.ID, domain.NewUpdateEvent(message)); err != nil {
		s.log.Warn("Unable to publish chat update", "room_id", room.ID, "error", err)
	}

	if _, err := s.cache.PushIfPresent(ctx, room.ID, view); err != nil {
		s.monitor.IncrCacheErrors()
		s.log.Debug("Unable to update cached messages", "room_id", room.ID, "error", err)
	}
	return message, nil
}

// History returns the recent messages of the room, newest first.
// Cache failures are treated as misses; a miss is served from the store and written back.
func (s *ChatService) History(ctx context.Context, room domain.Room, self, peer domain.Identity) ([]domain.MessageView, error) {
	views, hit, err := s.cache.Get(ctx, room.ID)
	switch {
	case err != nil:
		s.monitor.IncrCacheErrors()
		s.log.Debug("Cache read failed, falling back to store", "room_id", room.ID, "error", err)
	case hit:
		s.monitor.IncrCacheHits()
		return views, nil
	default:
		s.monitor.IncrCacheMisses()
	}

	messages, err := s.messages.ListRecent(ctx, room.ID, s.config.HistoryLimit, repositories.NewestFirst)
	if err != nil {
		return nil, err
	}
	avatars := map[domain.UserID]string{self.ID: self.AvatarURL, peer.ID: peer.AvatarURL}
	views = lo.Map(messages, func(m domain.Message, _ int) domain.MessageView {
		return domain.ToView(m, avatars[m.SenderID])
	})

	if len(views) > 0 {
		if err := s.cache.Put(ctx, room.ID, views); err != nil {
			s.monitor.IncrCacheErrors()
			s.log.Debug("Unable to populate cache", "room_id", room.ID, "error", err)
		} else {
			s.dropIfStale(ctx, room.ID, messages[0])
		}
	}
	return views, nil
}

// dropIfStale invalidates a freshly written list when a message was appended between
// the store read and the write: its push found no key and would otherwise be lost
// until the TTL expires. Appends after this check push onto the list written above.
func (s *ChatService) dropIfStale(ctx context.Context, roomID domain.RoomID, newest domain.Message) {
	latest, err := s.messages.ListRecent(ctx, roomID, 1, repositories.NewestFirst)
	if err != nil || len(latest) == 0 || latest[0].ID == newest.ID {
		return
	}
	s.log.Debug("History changed while caching, dropping cached list", "room_id", roomID)
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		s.monitor.IncrCacheErrors()
		s.log.Debug("Unable to invalidate cached messages", "room_id", roomID, "error", err)
	}
}

// GetUserChatList lists the rooms of the user that have at least one message,
// most recently active first.
func (s *ChatService) GetUserChatList(ctx context.Context, userID domain.UserID) ([]domain.ChatItem, error) {
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return []domain.ChatItem{}, nil
	}

	roomIDs := lo.Map(rooms, func(r domain.Room, _ int) domain.RoomID { return r.ID })
	last, err := s.messages.LastMessages(ctx, roomIDs)
	if err != nil {
		return nil, err
	}
	peerIDs := lo.Uniq(lo.Map(rooms, func(r domain.Room, _ int) domain.UserID { return r.PeerOf(userID) }))
	peers, err := s.users.GetUsers(ctx, peerIDs)
	if err != nil {
		return nil, err
	}

	items := lo.FilterMap(rooms, func(r domain.Room, _ int) (domain.ChatItem, bool) {
		message, ok := last[r.ID]
		if !ok {
			return domain.ChatItem{}, false
		}
		peerID := r.PeerOf(userID)
		recipient, known := peers[peerID]
		if !known {
			recipient = domain.Identity{ID: peerID}
		}
		return domain.ChatItem{
			RoomID:          r.ID,
			ExternalID:      r.ExternalID,
			Recipient:       recipient,
			LastMessage:     message.Text,
			LastMessageTime: message.CreatedAt,
		}, true
	})
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastMessageTime.After(items[j].LastMessageTime)
	})
	return items, nil
}
