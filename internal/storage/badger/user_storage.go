package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

type userStorage struct {
	store *Store
}

func newUserStorage(store *Store) *userStorage {
	return &userStorage{store: store}
}

func (s *userStorage) GetUser(_ context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.store.db.Get(userID, &user)
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("user '%s': %w", userID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", userID, err)
	}
	return &user, nil
}

func (s *userStorage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	var users []models.User
	query := badgerhold.Where("Email").Eq(strings.ToLower(strings.TrimSpace(email))).Limit(1)
	if err := s.store.db.Find(&users, query); err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user with email '%s': %w", email, models.ErrNotFound)
	}
	return &users[0], nil
}

func (s *userStorage) SaveUser(_ context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := s.store.db.Upsert(user.ID, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	s.store.logger.Debug().Str("user_id", user.ID).Msg("User saved")
	return nil
}

var _ interfaces.UserStore = (*userStorage)(nil)
