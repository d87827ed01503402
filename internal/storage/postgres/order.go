package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/order"
	"github.com/xenking/rewards-shop/internal/domain/user"
)

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ order.StatsApplier = (*OrderRepository)(nil)
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "user_id", "total_amount", "discount_applied",
	"status", "placement_state", "created_at", "updated_at",
}

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// live in order_items and are written in the same transaction as the order.
type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, now: time.Now}
}

// Create persists the order row and its items atomically.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO orders (user_id, total_amount, discount_applied, status, placement_state)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			o.UserID, o.TotalAmount, o.DiscountApplied, string(o.Status), string(o.State),
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return errors.Wrap(err, "insert order")
		}

		if len(o.Items) == 0 {
			return nil
		}
		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			rows[i] = []any{o.ID, it.SKU, it.Name, it.Quantity, it.Price}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "sku", "name", "quantity", "price"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return errors.Wrap(err, "insert order items")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "create order for user %d", o.UserID)
	}
	return nil
}

// GetByID loads an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	orders, err := r.selectOrders(ctx, psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	if len(orders) == 0 {
		return nil, order.ErrNotFound
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]order.Order, error) {
	q := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	orders, err := r.selectOrders(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of user %d", userID)
	}
	return orders, nil
}

// SetState records a placement state transition and bumps updated_at.
func (r *OrderRepository) SetState(ctx context.Context, id int64, state order.PlacementState) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET placement_state = $2, updated_at = $3 WHERE id = $1`,
		id, string(state), r.now(),
	)
	if err != nil {
		return errors.Wrapf(err, "set state of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ApplyUserStats moves an ORDER_SAVED order to STATS_UPDATED and adds it to
// the user's totals in the same transaction.
func (r *OrderRepository) ApplyUserStats(ctx context.Context, id int64) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			userID int64
			total  decimal.Decimal
		)
		err := tx.QueryRow(ctx, `
			UPDATE orders SET placement_state = $3, updated_at = $4
			WHERE id = $1 AND placement_state = $2
			RETURNING user_id, total_amount`,
			id, string(order.StateOrderSaved), string(order.StateStatsUpdated), r.now(),
		).Scan(&userID, &total)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "advance order")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users SET total_orders = total_orders + 1, total_spent = total_spent + $2
			WHERE id = $1`,
			userID, total,
		)
		if err != nil {
			return errors.Wrap(err, "update user stats")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(user.ErrNotFound, "user %d", userID)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "apply stats of order %d", id)
	}
	return applied, nil
}

// ListStale returns orders in one of q.States last updated before
// q.UpdatedBefore, oldest first.
func (r *OrderRepository) ListStale(ctx context.Context, q order.StaleQuery) ([]order.Order, error) {
	states := make([]string, len(q.States))
	for i, s := range q.States {
		states[i] = string(s)
	}

	sel := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"placement_state": states}).
		Where(sq.Lt{"updated_at": q.UpdatedBefore}).
		OrderBy("updated_at ASC", "id ASC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	orders, err := r.selectOrders(ctx, sel)
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	return orders, nil
}

// selectOrders runs an order query and attaches the items of every row.
func (r *OrderRepository) selectOrders(ctx context.Context, q sq.SelectBuilder) ([]order.Order, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var (
			o             order.Order
			status, state string
		)
		err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.DiscountApplied,
			&status, &state, &o.CreatedAt, &o.UpdatedAt)
		o.Status = order.Status(status)
		o.State = order.PlacementState(state)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if len(orders) == 0 {
		return nil, nil
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, `
		SELECT order_id, sku, name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`, ids,
	)
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      cart.Item
		)
		if err := rows.Scan(&orderID, &it.SKU, &it.Name, &it.Quantity, &it.Price); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate order items")
	}
	return nil
}
