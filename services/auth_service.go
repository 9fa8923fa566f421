package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
)

type IAuthManager interface {
	GetUser(ctx context.Context, token string) (domain.Identity, error)
}

// AuthManager resolves a connection credential into an identity.
// A valid token for a user unknown to the directory registers that user.
type AuthManager struct {
	tokens *auth.TokenManager
	users  repositories.IUserRepository
	log    *slog.Logger
}

func NewAuthManager(tokens *auth.TokenManager, users repositories.IUserRepository, log *slog.Logger) *AuthManager {
	return &AuthManager{tokens: tokens, users: users, log: log}
}

func (m *AuthManager) GetUser(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", errors.ErrUnauthorized)
	}
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, err
	}
	id, err := claims.ID()
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := m.users.GetUser(ctx, id)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, errors.ErrUserNotFound):
		user = domain.Identity{ID: id, Username: claims.Username}
		if err := m.users.PutUser(ctx, user); err != nil {
			return domain.Identity{}, err
		}
		m.log.Info("User registered from token", "user_id", id)
		return user, nil
	default:
		return domain.Identity{}, err
	}
}

type IUserService interface {
	GetUserWithProfile(ctx context.Context, userID domain.UserID) (domain.Identity, error)
}

type UserService struct {
	users repositories.IUserRepository
}

func NewUserService(users repositories.IUserRepository) *UserService {
	return &UserService{users: users}
}

// GetUserWithProfile resolves a chat peer; an unknown user is reported as ErrPeerNotFound.
func (s *UserService) GetUserWithProfile(ctx context.Context, userID domain.UserID) (domain.Identity, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, errors.ErrUserNotFound) {
		return domain.Identity{}, fmt.Errorf("%w: %d", errors.ErrPeerNotFound, userID)
	}
	return user, err
}
