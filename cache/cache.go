//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../mocks/mock_cache.go -package=mocks
package cache

import (
	"chat-relay/domain"
	"context"
	"fmt"
)

// IRecentMessageCache holds a bounded, short-lived, newest-first copy of a room's history.
// It is advisory: callers treat every error exactly like a miss.
type IRecentMessageCache interface {
	// Get returns the cached views newest-first; false means a miss.
	Get(ctx context.Context, roomID domain.RoomID) ([]domain.MessageView, bool, error)
	// Put replaces the cached list with views (newest-first), trims it and arms the TTL.
	Put(ctx context.Context, roomID domain.RoomID, views []domain.MessageView) error
	// PushIfPresent prepends view only when the list already exists, atomically.
	PushIfPresent(ctx context.Context, roomID domain.RoomID, view domain.MessageView) (bool, error)
	Invalidate(ctx context.Context, roomID domain.RoomID) error
	Ping(ctx context.Context) error
}

func Key(roomID domain.RoomID) string {
	return fmt.Sprintf("chat:room:%d:messages", roomID)
}

// NoopCache always misses. It stands in when no cache backend is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, domain.RoomID) ([]domain.MessageView, bool, error) {
	return nil, false, nil
}

func (NoopCache) Put(context.Context, domain.RoomID, []domain.MessageView) error { return nil }

func (NoopCache) PushIfPresent(context.Context, domain.RoomID, domain.MessageView) (bool, error) {
	return false, nil
}

func (NoopCache) Invalidate(context.Context, domain.RoomID) error { return nil }

func (NoopCache) Ping(context.Context) error { return nil }
