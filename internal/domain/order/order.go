package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/cart"
)

// ErrNotFound is returned when no order exists for the requested ID.
var ErrNotFound = apperr.New(apperr.KindNotFound, "order not found")

// Status is the business status of an order. The set is open; only
// StatusPlaced is assigned by this service.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusCancelled Status = "CANCELLED"
)

// PlacementState records how far the placement flow got for an order:
//
//	PENDING -> ORDER_SAVED -> STATS_UPDATED -> LOYALTY_CONFIRMED
//
// PENDING only exists in memory; a stored row starts at ORDER_SAVED.
type PlacementState string

const (
	StatePending          PlacementState = "PENDING"
	StateOrderSaved       PlacementState = "ORDER_SAVED"
	StateStatsUpdated     PlacementState = "STATS_UPDATED"
	StateLoyaltyConfirmed PlacementState = "LOYALTY_CONFIRMED"
)

// Done reports whether every placement step has completed.
func (s PlacementState) Done() bool { return s == StateLoyaltyConfirmed }

// Order is a placed customer order. Everything except State is immutable
// once stored.
type Order struct {
	ID              int64
	UserID          int64
	Items           []cart.Item
	TotalAmount     decimal.Decimal // after discount
	DiscountApplied decimal.Decimal
	Status          Status
	State           PlacementState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StaleQuery selects orders whose placement stopped part-way.
type StaleQuery struct {
	States        []PlacementState
	UpdatedBefore time.Time
	Limit         int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and its items atomically and fills in ID,
	// CreatedAt and UpdatedAt.
	Create(ctx context.Context, o *Order) error
	// GetByID returns ErrNotFound when the order does not exist.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, error)
	// SetState records a placement state transition.
	SetState(ctx context.Context, id int64, state PlacementState) error
	// ListStale returns orders matching q, oldest first.
	ListStale(ctx context.Context, q StaleQuery) ([]Order, error)
}

// StatsApplier adds a saved order to its user's statistics and records
// StateStatsUpdated in one transaction. It reports false, changing nothing,
// when the order is no longer in StateOrderSaved.
type StatsApplier interface {
	ApplyUserStats(ctx context.Context, orderID int64) (bool, error)
}
