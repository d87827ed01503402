package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rewards-shop/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

const uniqueViolation = "23505"

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID loads a single user. Returns user.ErrNotFound when no row matches.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, total_orders, total_spent, loyalty_points, created_at
		FROM users
		WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.TotalOrders, &u.TotalSpent, &u.LoyaltyPoints, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "select user %d", id)
	}
	return &u, nil
}

// Create inserts u and fills in ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, total_orders, total_spent, loyalty_points)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		u.Email, u.Name, u.TotalOrders, u.TotalSpent, u.LoyaltyPoints,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

// Save overwrites the mutable columns of u.
func (r *UserRepository) Save(ctx context.Context, u *user.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, name = $3, total_orders = $4, total_spent = $5, loyalty_points = $6
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.TotalOrders, u.TotalSpent, u.LoyaltyPoints,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "update user %d", u.ID)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
