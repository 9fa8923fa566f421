package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUser_Put_Then_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t))
	alice := domain.Identity{ID: 1, Username: "alice", Email: "alice@example.com", AvatarURL: "/a.png"}

	req.NoError(repository.PutUser(ctx, alice))

	fetched, err := repository.GetUser(ctx, 1)
	req.NoError(err)
	req.Equal(alice, fetched)

	_, err = repository.GetUser(ctx, 2)
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestUser_GetUsers_Skips_Unknown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openDB(t))
	req.NoError(repository.PutUser(ctx, domain.Identity{ID: 1, Username: "alice"}))
	req.NoError(repository.PutUser(ctx, domain.Identity{ID: 2, Username: "bob"}))

	users, err := repository.GetUsers(ctx, []domain.UserID{1, 2, 3})
	req.NoError(err)
	req.Len(users, 2)
	req.Equal("bob", users[2].Username)
}
