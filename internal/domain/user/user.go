package user

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/apperr"
)

var (
	// ErrNotFound is returned when no user exists for the requested ID.
	ErrNotFound = apperr.New(apperr.KindNotFound, "user not found")
	// ErrEmailTaken is returned when creating a user whose email is already registered.
	ErrEmailTaken = apperr.New(apperr.KindConflict, "email already registered")
)

// User is a customer together with the aggregates maintained by order placement.
// TotalOrders and TotalSpent reflect the user's PLACED orders; storage does not
// enforce that, the placement flow does.
type User struct {
	ID            int64
	Email         string
	Name          string
	TotalOrders   int
	TotalSpent    decimal.Decimal
	LoyaltyPoints int
	CreatedAt     time.Time
}

// Repository defines persistence operations for users.
type Repository interface {
	// GetByID returns ErrNotFound when the user does not exist.
	GetByID(ctx context.Context, id int64) (*User, error)
	// Create inserts u and fills in the generated ID and CreatedAt.
	// Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, u *User) error
	// Save overwrites the mutable columns of an existing user.
	// Returns ErrNotFound when the row is gone.
	Save(ctx context.Context, u *User) error
}
