package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuthManager_GetUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokens := auth.NewTokenManager("a-very-long-test-secret", time.Hour)
	users := mocks.NewMockIUserRepository(ctrl)
	manager := NewAuthManager(tokens, users, log)

	t.Run("should resolve a known user from the directory", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.GenerateToken(alice.ID, "alice", nil)
		req.NoError(err)
		users.EXPECT().GetUser(gomock.Any(), alice.ID).Return(alice, nil)

		user, err := manager.GetUser(context.Background(), token)

		req.NoError(err)
		req.Equal(alice, user)
	})

	t.Run("should register a user the directory does not know yet", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.GenerateToken(77, "dave", nil)
		req.NoError(err)
		expected := domain.Identity{ID: 77, Username: "dave"}
		users.EXPECT().GetUser(gomock.Any(), domain.UserID(77)).Return(domain.Identity{}, errors.ErrUserNotFound)
		users.EXPECT().PutUser(gomock.Any(), expected).Return(nil)

		user, err := manager.GetUser(context.Background(), token)

		req.NoError(err)
		req.Equal(expected, user)
	})

	t.Run("should reject missing and forged tokens without touching the directory", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().GetUser(gomock.Any(), gomock.Any()).Times(0)
		forged, err := auth.NewTokenManager("someone-else-secret", time.Hour).GenerateToken(alice.ID, "alice", nil)
		req.NoError(err)

		for _, token := range []string{"", "garbage", forged} {
			_, err := manager.GetUser(context.Background(), token)
			req.ErrorIs(err, errors.ErrUnauthorized)
		}
	})

	t.Run("should propagate directory failures", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.GenerateToken(alice.ID, "alice", nil)
		req.NoError(err)
		users.EXPECT().GetUser(gomock.Any(), alice.ID).
			Return(domain.Identity{}, fmt.Errorf("%w: closed", errors.ErrStoreUnavailable))

		_, err = manager.GetUser(context.Background(), token)

		req.ErrorIs(err, errors.ErrStoreUnavailable)
	})
}

func TestUserService_GetUserWithProfile(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	svc := NewUserService(users)

	users.EXPECT().GetUser(gomock.Any(), bob.ID).Return(bob, nil)
	users.EXPECT().GetUser(gomock.Any(), domain.UserID(404)).Return(domain.Identity{}, errors.ErrUserNotFound)

	peer, err := svc.GetUserWithProfile(context.Background(), bob.ID)
	req.NoError(err)
	req.Equal(bob, peer)

	_, err = svc.GetUserWithProfile(context.Background(), 404)
	req.ErrorIs(err, errors.ErrPeerNotFound)
}
