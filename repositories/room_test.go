package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRoomRepository(t *testing.T) *RoomRepository {
	t.Helper()
	repository, err := NewRoomRepository(openDB(t), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func TestRoom_GetOrCreate_Is_Symmetric(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newRoomRepository(t)

	// When A opens a room with B, then B opens a room with A
	first, created, err := repository.GetOrCreate(ctx, 1, 2)
	req.NoError(err)
	req.True(created)
	second, created, err := repository.GetOrCreate(ctx, 2, 1)
	req.NoError(err)

	// Then both resolve to the same room
	req.False(created)
	req.Equal(first, second)
	req.Equal(domain.UserID(1), first.SenderID)
	req.Equal(domain.UserID(2), first.RecipientID)
	req.NotEmpty(first.ExternalID)
}

func TestRoom_GetOrCreate_Concurrently_Yields_One_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newRoomRepository(t)

	ids := make(chan domain.RoomID, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := domain.UserID(5), domain.UserID(6)
			if i%2 == 0 {
				a, b = b, a
			}
			room, _, err := repository.GetOrCreate(ctx, a, b)
			req.NoError(err)
			ids <- room.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	distinct := map[domain.RoomID]struct{}{}
	for id := range ids {
		distinct[id] = struct{}{}
	}
	req.Len(distinct, 1)
}

func TestRoom_Self_Room_Is_Rejected(t *testing.T) {
	req := require.New(t)
	_, _, err := newRoomRepository(t).GetOrCreate(context.Background(), 3, 3)
	req.ErrorIs(err, errors.ErrSelfRoom)
}

func TestRoom_GetByID_And_ListForUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newRoomRepository(t)

	ab, _, err := repository.GetOrCreate(ctx, 1, 2)
	req.NoError(err)
	ac, _, err := repository.GetOrCreate(ctx, 3, 1)
	req.NoError(err)
	_, _, err = repository.GetOrCreate(ctx, 2, 3)
	req.NoError(err)

	fetched, err := repository.GetByID(ctx, ab.ID)
	req.NoError(err)
	req.Equal(ab, fetched)

	rooms, err := repository.ListForUser(ctx, 1)
	req.NoError(err)
	req.ElementsMatch([]domain.Room{ab, ac}, rooms)

	_, err = repository.GetByID(ctx, 999)
	req.ErrorIs(err, errors.ErrRoomNotFound)
}
