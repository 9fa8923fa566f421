//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type IMessageRepository interface {
	Append(ctx context.Context, roomID domain.RoomID, sender domain.Identity, text string) (domain.Message, error)
	ListRecent(ctx context.Context, roomID domain.RoomID, limit int, order Order) ([]domain.Message, error)
	Count(ctx context.Context, roomID domain.RoomID) (int, error)
	DeleteOldest(ctx context.Context, roomID domain.RoomID) (bool, error)
	LastMessages(ctx context.Context, roomIDs []domain.RoomID) (map[domain.RoomID]domain.Message, error)
	Ping(ctx context.Context) error
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu     sync.Mutex
	lastAt int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messagePrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%d:", roomID))
}

// messageKey is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%s", m.RoomID, m.CreatedAt.UnixNano(), m.ID))
}

// nextTimestamp hands out strictly increasing timestamps so that insertion order
// and key order never disagree, even for appends within the same nanosecond.
func (m *MessageRepository) nextTimestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= m.lastAt {
		now = m.lastAt + 1
	}
	m.lastAt = now
	return time.Unix(0, now).UTC()
}

func (m *MessageRepository) Append(_ context.Context, roomID domain.RoomID, sender domain.Identity, text string) (domain.Message, error) {
	message := domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  sender.ID,
		Username:  sender.Username,
		Text:      text,
		CreatedAt: m.nextTimestamp(),
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), encodeMessage(message))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// ListRecent returns the most recent messages of a room using a reverse prefix scan.
// With OldestFirst the same window is returned in chronological order.
func (m *MessageRepository) ListRecent(_ context.Context, roomID domain.RoomID, limit int, order Order) ([]domain.Message, error) {
	var values [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(values) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(values))
	for _, value := range values {
		message, err := decodeMessage(value)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if order == OldestFirst {
		return lo.Reverse(messages), nil
	}
	return messages, nil
}

func (m *MessageRepository) Count(_ context.Context, roomID domain.RoomID) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return count, nil
}

// DeleteOldest removes the first key of the room prefix, which is its oldest message.
func (m *MessageRepository) DeleteOldest(_ context.Context, roomID domain.RoomID) (bool, error) {
	deleted := false
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			it.Close()
			return nil
		}
		key := it.Item().KeyCopy(nil)
		it.Close()
		deleted = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return deleted, nil
}

// LastMessages returns the newest message of every given room that has one.
func (m *MessageRepository) LastMessages(ctx context.Context, roomIDs []domain.RoomID) (map[domain.RoomID]domain.Message, error) {
	last := make(map[domain.RoomID]domain.Message, len(roomIDs))
	for _, roomID := range roomIDs {
		messages, err := m.ListRecent(ctx, roomID, 1, NewestFirst)
		if err != nil {
			return nil, err
		}
		if len(messages) == 1 {
			last[roomID] = messages[0]
		}
	}
	return last, nil
}

func (m *MessageRepository) Ping(_ context.Context) error {
	if m.db.IsClosed() {
		return errors.ErrStoreUnavailable
	}
	return nil
}
