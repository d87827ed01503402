package user

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/apperr"
)

// Service reads and mutates user records and their order statistics.
type Service struct {
	users Repository
}

// NewService creates a user Service backed by the given repository.
func NewService(users Repository) *Service {
	return &Service{users: users}
}

// GetUserByID returns the user or ErrNotFound.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	return u, nil
}

// UpdateUserStats overwrites the user's order count and spend. It reports
// false when the user does not exist and fails only on store errors. Applying
// the same values twice leaves the same stored state.
func (s *Service) UpdateUserStats(ctx context.Context, id int64, totalOrders int, totalSpent decimal.Decimal) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "load user %d", id)
	}

	u.TotalOrders = totalOrders
	u.TotalSpent = totalSpent

	if err := s.users.Save(ctx, u); err != nil {
		// Deleted between the read and the write.
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "save user %d", id)
	}
	return true, nil
}

// CreateUser registers a new user with zeroed statistics.
func (s *Service) CreateUser(ctx context.Context, email, name string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("email %q is not valid", email)
	}

	u := &User{
		Email:      email,
		Name:       strings.TrimSpace(name),
		TotalSpent: decimal.Zero,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}
