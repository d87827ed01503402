package order

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/domain/user"
)

// --- Mock implementations ---

type mockUsers struct {
	byID      map[int64]*user.User
	getErr    error
	updateErr error
	updates   int
}

func newUsers(users ...user.User) *mockUsers {
	m := &mockUsers{byID: make(map[int64]*user.User)}
	for i := range users {
		u := users[i]
		m.byID[u.ID] = &u
	}
	return m
}

func (m *mockUsers) GetUserByID(_ context.Context, id int64) (*user.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUsers) UpdateUserStats(_ context.Context, id int64, totalOrders int, totalSpent decimal.Decimal) (bool, error) {
	m.updates++
	if m.updateErr != nil {
		return false, m.updateErr
	}
	u, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	u.TotalOrders = totalOrders
	u.TotalSpent = totalSpent
	return true, nil
}

type confirmCall struct {
	userID int64
	total  decimal.Decimal
}

type mockLoyalty struct {
	calls []confirmCall
	err   error
}

func (m *mockLoyalty) ConfirmLoyalty(_ context.Context, userID int64, total decimal.Decimal) error {
	m.calls = append(m.calls, confirmCall{userID: userID, total: total})
	return m.err
}

type mockOrderRepo struct {
	byID      map[int64]*Order
	nextID    int64
	createErr error
	stateErr  map[PlacementState]error
	listErr   error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[int64]*Order), stateErr: make(map[PlacementState]error)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOrderRepo) SetState(_ context.Context, id int64, state PlacementState) error {
	if err := m.stateErr[state]; err != nil {
		return err
	}
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.State = state
	return nil
}

func (m *mockOrderRepo) ListStale(_ context.Context, q StaleQuery) ([]Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Order
	for _, o := range m.byID {
		for _, s := range q.States {
			if o.State == s && o.UpdatedAt.Before(q.UpdatedBefore) {
				out = append(out, *o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// --- Helpers ---

func newTestService(t *testing.T, users Users, loyalty *mockLoyalty, orders *mockOrderRepo) *Service {
	t.Helper()
	svc, err := NewService(users, loyalty, orders)
	require.NoError(t, err)
	return svc
}

func scenarioUser() user.User {
	return user.User{
		ID:          1,
		Email:       "alice@example.com",
		Name:        "Alice",
		TotalOrders: 2,
		TotalSpent:  decimal.RequireFromString("100.0"),
	}
}

func scenarioRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID: 1,
		Cart: cart.Cart{
			UserID: 1,
			Items: []cart.Item{
				{SKU: "A", Name: "Widget", Quantity: 1, Price: decimal.NewFromInt(50)},
			},
			TotalAmount: decimal.RequireFromString("50.0"),
		},
	}
}

// --- Tests ---

func TestPlaceOrder_Scenario(t *testing.T) {
	users := newUsers(scenarioUser())
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	svc := newTestService(t, users, loyalty, orders)

	o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), &rewards.Response{
		DiscountAmount: decimal.RequireFromString("10.0"),
	})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("40.0").Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.True(t, decimal.RequireFromString("10.0").Equal(o.DiscountApplied))
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, StateLoyaltyConfirmed, o.State)
	assert.Equal(t, int64(1), o.UserID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "A", o.Items[0].SKU)

	u := users.byID[1]
	assert.Equal(t, 3, u.TotalOrders)
	assert.True(t, decimal.RequireFromString("140.0").Equal(u.TotalSpent), "spent %s", u.TotalSpent)

	require.Len(t, loyalty.calls, 1)
	assert.Equal(t, int64(1), loyalty.calls[0].userID)
	assert.True(t, decimal.NewFromInt(40).Equal(loyalty.calls[0].total))

	require.Len(t, orders.byID, 1)
	assert.Equal(t, StateLoyaltyConfirmed, orders.byID[o.ID].State)
}

func TestPlaceOrder_NoRewards(t *testing.T) {
	users := newUsers(scenarioUser())
	svc := newTestService(t, users, &mockLoyalty{}, newOrderRepo())

	o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(50).Equal(o.TotalAmount))
	assert.True(t, o.DiscountApplied.IsZero())
	assert.Equal(t, 3, users.byID[1].TotalOrders)
	assert.True(t, decimal.NewFromInt(150).Equal(users.byID[1].TotalSpent))
}

func TestPlaceOrder_DiscountExceedsTotal(t *testing.T) {
	users := newUsers(scenarioUser())
	svc := newTestService(t, users, &mockLoyalty{}, newOrderRepo())

	o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), &rewards.Response{
		DiscountAmount: decimal.NewFromInt(80),
	})
	require.NoError(t, err)

	// No floor: the negative total is kept and counted into the user's spend.
	assert.True(t, decimal.NewFromInt(-30).Equal(o.TotalAmount))
	assert.True(t, decimal.NewFromInt(80).Equal(o.DiscountApplied))
	assert.True(t, decimal.NewFromInt(70).Equal(users.byID[1].TotalSpent))
}

func TestPlaceOrder_NegativeDiscount(t *testing.T) {
	users := newUsers(scenarioUser())
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	svc := newTestService(t, users, loyalty, orders)

	o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), &rewards.Response{
		DiscountAmount: decimal.NewFromInt(-1000),
	})
	require.Error(t, err)
	assert.Nil(t, o)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Empty(t, orders.byID)
	assert.Empty(t, loyalty.calls)
	assert.Equal(t, 2, users.byID[1].TotalOrders)
	assert.True(t, decimal.NewFromInt(100).Equal(users.byID[1].TotalSpent))
}

func TestPlaceOrder_StatsDelta(t *testing.T) {
	discounts := []string{"0", "0.01", "12.34", "49.99"}

	for _, d := range discounts {
		t.Run(d, func(t *testing.T) {
			before := scenarioUser()
			users := newUsers(before)
			svc := newTestService(t, users, &mockLoyalty{}, newOrderRepo())

			discount := decimal.RequireFromString(d)
			o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), &rewards.Response{DiscountAmount: discount})
			require.NoError(t, err)

			after := users.byID[1]
			assert.Equal(t, before.TotalOrders+1, after.TotalOrders)
			assert.True(t, before.TotalSpent.Add(o.TotalAmount).Equal(after.TotalSpent))
			assert.True(t, decimal.NewFromInt(50).Sub(discount).Equal(o.TotalAmount))
			assert.True(t, discount.Equal(o.DiscountApplied))
		})
	}
}

func TestPlaceOrder_UserNotFound(t *testing.T) {
	users := newUsers()
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	svc := newTestService(t, users, loyalty, orders)

	req := scenarioRequest()
	req.UserID = 999
	req.Cart.UserID = 999

	o, err := svc.PlaceOrder(context.Background(), req, nil)
	require.Error(t, err)
	assert.Nil(t, o)

	var unf *UserNotFoundError
	require.ErrorAs(t, err, &unf)
	assert.Equal(t, int64(999), unf.UserID)
	assert.ErrorIs(t, err, user.ErrNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Empty(t, orders.byID, "no order persisted")
	assert.Zero(t, users.updates)
	assert.Empty(t, loyalty.calls)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
	}{
		{name: "missing user", mutate: func(r *PlaceOrderRequest) { r.UserID = 0 }},
		{name: "cart user mismatch", mutate: func(r *PlaceOrderRequest) { r.Cart.UserID = 2 }},
		{name: "no items", mutate: func(r *PlaceOrderRequest) { r.Cart.Items = nil }},
		{name: "zero quantity", mutate: func(r *PlaceOrderRequest) { r.Cart.Items[0].Quantity = 0 }},
		{name: "negative cart total", mutate: func(r *PlaceOrderRequest) { r.Cart.TotalAmount = decimal.NewFromInt(-5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := newUsers(scenarioUser())
			orders := newOrderRepo()
			svc := newTestService(t, users, &mockLoyalty{}, orders)

			req := scenarioRequest()
			tt.mutate(&req)

			_, err := svc.PlaceOrder(context.Background(), req, nil)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Empty(t, orders.byID)
		})
	}
}

func TestPlaceOrder_CartUserDefaultsToRequestUser(t *testing.T) {
	svc := newTestService(t, newUsers(scenarioUser()), &mockLoyalty{}, newOrderRepo())

	req := scenarioRequest()
	req.Cart.UserID = 0

	_, err := svc.PlaceOrder(context.Background(), req, nil)
	require.NoError(t, err)
}

func TestPlaceOrder_UserLookupError(t *testing.T) {
	users := newUsers()
	users.getErr = errors.New("connection refused")
	orders := newOrderRepo()
	svc := newTestService(t, users, &mockLoyalty{}, orders)

	_, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "get user")
	assert.Empty(t, orders.byID)
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	users := newUsers(scenarioUser())
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	orders.createErr = errors.New("db write failed")
	svc := newTestService(t, users, loyalty, orders)

	_, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Zero(t, users.updates)
	assert.Empty(t, loyalty.calls)
}

func TestPlaceOrder_StatsUpdateFails(t *testing.T) {
	users := newUsers(scenarioUser())
	users.updateErr = errors.New("deadlock detected")
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	svc := newTestService(t, users, loyalty, orders)

	o, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)
	assert.Nil(t, o)
	assert.Equal(t, apperr.KindInconsistentState, apperr.KindOf(err))

	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, StateOrderSaved, inc.Order.State)
	assert.NotZero(t, inc.Order.ID)

	// The order stays persisted; loyalty is not confirmed.
	require.Len(t, orders.byID, 1)
	assert.Equal(t, StateOrderSaved, orders.byID[inc.Order.ID].State)
	assert.Empty(t, loyalty.calls)
}

func TestPlaceOrder_UserVanishedBeforeStats(t *testing.T) {
	users := newUsers(scenarioUser())
	orders := newOrderRepo()
	svc := newTestService(t, &vanishingUsers{mockUsers: users}, &mockLoyalty{}, orders)

	_, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInconsistentState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "vanished")
	assert.Len(t, orders.byID, 1)
}

// vanishingUsers reports the user as missing on the stats update.
type vanishingUsers struct {
	*mockUsers
}

func (v *vanishingUsers) UpdateUserStats(context.Context, int64, int, decimal.Decimal) (bool, error) {
	return false, nil
}

func TestPlaceOrder_ConfirmLoyaltyFails(t *testing.T) {
	users := newUsers(scenarioUser())
	engineErr := apperr.Wrap(apperr.KindRewardsEngine, "confirm loyalty", errors.New("status 502"))
	loyalty := &mockLoyalty{err: engineErr}
	orders := newOrderRepo()
	svc := newTestService(t, users, loyalty, orders)

	_, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInconsistentState, apperr.KindOf(err))
	assert.ErrorIs(t, err, engineErr)

	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, StateStatsUpdated, inc.Order.State)

	// Stats stay committed.
	assert.Equal(t, 3, users.byID[1].TotalOrders)
	assert.Equal(t, StateStatsUpdated, orders.byID[inc.Order.ID].State)
}

func TestPlaceOrder_StateRecordFails(t *testing.T) {
	users := newUsers(scenarioUser())
	loyalty := &mockLoyalty{}
	orders := newOrderRepo()
	orders.stateErr[StateLoyaltyConfirmed] = errors.New("timeout")
	svc := newTestService(t, users, loyalty, orders)

	_, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.Error(t, err)

	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, StateStatsUpdated, inc.Order.State)
	assert.Len(t, loyalty.calls, 1)
}

func TestGetOrder(t *testing.T) {
	orders := newOrderRepo()
	svc := newTestService(t, newUsers(scenarioUser()), &mockLoyalty{}, orders)

	placed, err := svc.PlaceOrder(context.Background(), scenarioRequest(), nil)
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	_, err = svc.GetOrder(context.Background(), 12345)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListUserOrders(t *testing.T) {
	orders := newOrderRepo()
	svc := newTestService(t, newUsers(scenarioUser()), &mockLoyalty{}, orders)
	ctx := context.Background()

	for range 3 {
		_, err := svc.PlaceOrder(ctx, scenarioRequest(), nil)
		require.NoError(t, err)
	}

	page, err := svc.ListUserOrders(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Greater(t, page[0].ID, page[1].ID, "newest first")

	_, err = svc.ListUserOrders(ctx, 999, 10, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.ListUserOrders(ctx, 1, 0, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.ListUserOrders(ctx, 1, 10, -1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
