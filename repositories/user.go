//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// IUserRepository is the read side of the user directory owned by the identity service.
// PutUser exists so the directory can be seeded locally.
type IUserRepository interface {
	GetUser(ctx context.Context, userID domain.UserID) (domain.Identity, error)
	GetUsers(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.Identity, error)
	PutUser(ctx context.Context, user domain.Identity) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:%d", userID))
}

func (u *UserRepository) PutUser(_ context.Context, user domain.Identity) error {
	err := u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), encodeUser(user))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (u *UserRepository) GetUser(_ context.Context, userID domain.UserID) (domain.Identity, error) {
	var user domain.Identity
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = decodeUser(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Identity{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return user, nil
}

// GetUsers skips unknown ids instead of failing the whole lookup.
func (u *UserRepository) GetUsers(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.Identity, error) {
	users := make(map[domain.UserID]domain.Identity, len(userIDs))
	for _, userID := range userIDs {
		user, err := u.GetUser(ctx, userID)
		if errors.Is(err, errors.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users[userID] = user
	}
	return users, nil
}
