package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/domain/user"
)

// UserNotFoundError indicates the order references a user that does not exist.
type UserNotFoundError struct {
	UserID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.UserID)
}

func (e *UserNotFoundError) Unwrap() error { return user.ErrNotFound }

// IncompleteError reports an order that was persisted while a later placement
// step failed. Order.State is the last state that was recorded. Nothing is
// rolled back; the reconciler or an operator has to finish the placement.
type IncompleteError struct {
	Order *Order
	Err   error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("order %d persisted but placement stopped at %s: %v", e.Order.ID, e.Order.State, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Users is the subset of the user service the placement flow needs.
type Users interface {
	GetUserByID(ctx context.Context, id int64) (*user.User, error)
	UpdateUserStats(ctx context.Context, id int64, totalOrders int, totalSpent decimal.Decimal) (bool, error)
}

// Loyalty confirms loyalty effects with the rewards engine.
type Loyalty interface {
	ConfirmLoyalty(ctx context.Context, userID int64, total decimal.Decimal) error
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID int64
	Cart   cart.Cart
}

// Validate checks the request before any side effect happens.
func (r PlaceOrderRequest) Validate() error {
	if r.UserID <= 0 {
		return apperr.Validation("userId must be positive")
	}
	if r.Cart.UserID != 0 && r.Cart.UserID != r.UserID {
		return apperr.Validation("cart userId %d does not match userId %d", r.Cart.UserID, r.UserID)
	}
	c := r.Cart
	c.UserID = r.UserID
	return c.Validate()
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for placement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for placement counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service encapsulates order placement and order lookups.
type Service struct {
	users   Users
	loyalty Loyalty
	orders  Repository

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer     trace.Tracer
	completed  metric.Int64Counter
	incomplete metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(users Users, loyalty Loyalty, orders Repository, opts ...Option) (*Service, error) {
	s := &Service{
		users:          users,
		loyalty:        loyalty,
		orders:         orders,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}

	const scope = "github.com/xenking/rewards-shop/internal/domain/order"
	s.tracer = s.tracerProvider.Tracer(scope)
	meter := s.meterProvider.Meter(scope)

	var err error
	if s.completed, err = meter.Int64Counter("order.placement.completed",
		metric.WithDescription("Orders that went through every placement step"),
	); err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	if s.incomplete, err = meter.Int64Counter("order.placement.incomplete",
		metric.WithDescription("Orders persisted while a later placement step failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create incomplete counter")
	}
	return s, nil
}

// PlaceOrder runs the placement flow strictly in sequence:
//
//  1. look up the user (no side effects if absent or if rw carries a
//     negative discount),
//  2. total = cart total - discount (rw may be nil, meaning no discount),
//  3. build a PLACED order,
//  4. persist it (durability point),
//  5. bump the user's stats from the snapshot read in step 1,
//  6. confirm loyalty with the rewards engine.
//
// A failure after step 4 returns an *IncompleteError tagged with
// apperr.KindInconsistentState; the order stays stored. Step 5 uses the
// step 1 snapshot, so concurrent placements for one user can lose an update.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest, rw *rewards.Response) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int64("user.id", req.UserID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if rw.Discount().IsNegative() {
		return nil, apperr.Validation("discountAmount must not be negative")
	}

	u, err := s.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &UserNotFoundError{UserID: req.UserID}
		}
		return nil, errors.Wrap(err, "get user")
	}

	discount := rw.Discount()
	total := req.Cart.TotalAmount.Sub(discount)
	if total.IsNegative() {
		zctx.From(ctx).Warn("Discount exceeds cart total, order total is negative",
			zap.Int64("user_id", u.ID),
			zap.Stringer("cart_total", req.Cart.TotalAmount),
			zap.Stringer("discount", discount),
		)
	}

	o := &Order{
		UserID:          u.ID,
		Items:           req.Cart.Items,
		TotalAmount:     total,
		DiscountApplied: discount,
		Status:          StatusPlaced,
		State:           StateOrderSaved,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	ok, err := s.users.UpdateUserStats(ctx, u.ID, u.TotalOrders+1, u.TotalSpent.Add(total))
	if err == nil && !ok {
		err = errors.Errorf("user %d vanished before stats update", u.ID)
	}
	if err != nil {
		return nil, s.abandon(ctx, o, errors.Wrap(err, "update user stats"))
	}
	if err := s.advance(ctx, o, StateStatsUpdated); err != nil {
		return nil, s.abandon(ctx, o, err)
	}

	if err := s.loyalty.ConfirmLoyalty(ctx, u.ID, total); err != nil {
		return nil, s.abandon(ctx, o, errors.Wrap(err, "confirm loyalty"))
	}
	if err := s.advance(ctx, o, StateLoyaltyConfirmed); err != nil {
		return nil, s.abandon(ctx, o, err)
	}

	s.completed.Add(ctx, 1)
	return o, nil
}

// GetOrder returns a stored order or ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// ListUserOrders returns a page of the user's orders, newest first. The user
// must exist.
func (s *Service) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		return nil, apperr.Validation("limit must be between 1 and 100")
	}
	if offset < 0 {
		return nil, apperr.Validation("offset must not be negative")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &UserNotFoundError{UserID: userID}
		}
		return nil, errors.Wrap(err, "get user")
	}

	orders, err := s.orders.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %d", userID)
	}
	return orders, nil
}

func (s *Service) advance(ctx context.Context, o *Order, state PlacementState) error {
	if err := s.orders.SetState(ctx, o.ID, state); err != nil {
		return errors.Wrapf(err, "record state %s", state)
	}
	o.State = state
	return nil
}

// abandon logs and counts an order whose placement stopped after it was
// persisted and returns the error handed to the caller.
func (s *Service) abandon(ctx context.Context, o *Order, cause error) error {
	zctx.From(ctx).Error("Order placement incomplete",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.String("state", string(o.State)),
		zap.Error(cause),
	)
	s.incomplete.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(o.State))))
	return apperr.Wrap(apperr.KindInconsistentState, "place order", &IncompleteError{Order: o, Err: cause})
}
