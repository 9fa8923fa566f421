//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	roomSequenceKey       = "seq:room"
	roomSequenceBandwidth = 100
	maxConflictRetries    = 5
)

type IRoomRepository interface {
	// GetOrCreate returns the single room shared by the two users, creating it when missing.
	// The boolean reports whether this call created it.
	GetOrCreate(ctx context.Context, senderID, recipientID domain.UserID) (domain.Room, bool, error)
	GetByID(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
	Ping(ctx context.Context) error
}

type RoomRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) (*RoomRepository, error) {
	seq, err := db.GetSequence([]byte(roomSequenceKey), roomSequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("room sequence: %w", err)
	}
	return &RoomRepository{db: db, seq: seq, log: log}, nil
}

// Close hands back the leased ids so they are not lost on restart.
func (r *RoomRepository) Close() error {
	return r.seq.Release()
}

// Keys:
//   - room:pair:{low}:{high} -> room record, one per unordered pair
//   - room:id:{id}           -> room record
//   - room:user:{user}:{id}  -> empty, index for ListForUser
func pairKey(a, b domain.UserID) []byte {
	low, high := domain.Pair(a, b)
	return []byte(fmt.Sprintf("room:pair:%d:%d", low, high))
}

func roomIDKey(id domain.RoomID) []byte {
	return []byte(fmt.Sprintf("room:id:%d", id))
}

func userRoomPrefix(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("room:user:%d:", userID))
}

func (r *RoomRepository) GetOrCreate(_ context.Context, senderID, recipientID domain.UserID) (domain.Room, bool, error) {
	if senderID == recipientID {
		return domain.Room{}, false, errors.ErrSelfRoom
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		room, created, err := r.getOrCreate(senderID, recipientID)
		if errors.Is(err, badger.ErrConflict) {
			r.log.Debug("Room creation conflict, retrying", "sender_id", senderID, "recipient_id", recipientID)
			continue
		}
		if err != nil {
			return domain.Room{}, false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
		return room, created, nil
	}
	return domain.Room{}, false, fmt.Errorf("%w: too many conflicts", errors.ErrStoreUnavailable)
}

func (r *RoomRepository) getOrCreate(senderID, recipientID domain.UserID) (domain.Room, bool, error) {
	var room domain.Room
	created := false
	err := r.db.Update(func(txn *badger.Txn) error {
		key := pairKey(senderID, recipientID)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			return item.Value(func(val []byte) error {
				room, err = decodeRoom(val)
				return err
			})
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id, err := r.seq.Next()
		if err != nil {
			return err
		}
		room = domain.Room{
			// badger sequences start at 0, room ids start at 1
			ID:          domain.RoomID(id + 1),
			ExternalID:  uuid.NewString(),
			SenderID:    senderID,
			RecipientID: recipientID,
			CreatedAt:   time.Now().UTC(),
		}
		value := encodeRoom(room)
		if err = txn.Set(key, value); err != nil {
			return err
		}
		if err = txn.Set(roomIDKey(room.ID), value); err != nil {
			return err
		}
		for _, userID := range []domain.UserID{senderID, recipientID} {
			indexKey := append(userRoomPrefix(userID), []byte(strconv.FormatInt(int64(room.ID), 10))...)
			if err = txn.Set(indexKey, nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	return room, created, err
}

func (r *RoomRepository) GetByID(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomIDKey(roomID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			room, err = decodeRoom(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return room, nil
}

func (r *RoomRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	var ids []domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := userRoomPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				r.log.Warn("Skipping malformed room index key", "key", string(it.Item().Key()))
				continue
			}
			ids = append(ids, domain.RoomID(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	rooms := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *RoomRepository) Ping(_ context.Context) error {
	if r.db.IsClosed() {
		return errors.ErrStoreUnavailable
	}
	return nil
}
