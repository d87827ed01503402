package main

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 100_000

type loadStats struct {
	Read       int
	Inserted   int
	Duplicates int
	Invalid    int
}

// writer persists a batch of users and reports how many rows were new.
type writer interface {
	write(ctx context.Context, batch []seedUser) (int, error)
	batchSize() int
}

// load streams the files through d and hands admitted users to w in batches.
// Reading and writing run concurrently.
func load(ctx context.Context, files []string, d *deduper, w writer) (loadStats, error) {
	var stats loadStats
	users := make(chan seedUser, w.batchSize())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(users)
		lg := zctx.From(ctx)
		for _, path := range files {
			err := streamFile(ctx, path, func(line int, data []byte) error {
				stats.Read++
				u, err := decodeSeedUser(data)
				if err != nil || !u.valid() {
					stats.Invalid++
					lg.Warn("Skipping invalid line",
						zap.String("file", path),
						zap.Int("line", line),
						zap.Error(err),
					)
					return nil
				}
				if !d.admit(u.Email) {
					stats.Duplicates++
					return nil
				}
				select {
				case users <- u:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
		}
		return nil
	})

	inserted := 0
	g.Go(func() error {
		lg := zctx.From(ctx)
		batch := make([]seedUser, 0, w.batchSize())
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := w.write(ctx, batch)
			if err != nil {
				return errors.Wrapf(err, "write batch of %d users", len(batch))
			}
			before := inserted
			inserted += n
			if before/progressEvery != inserted/progressEvery {
				lg.Info("Seed progress", zap.Int("inserted", inserted))
			}
			batch = batch[:0]
			return nil
		}
		for u := range users {
			batch = append(batch, u)
			if len(batch) == cap(batch) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Inserted = inserted
	// Rows already stored are skipped by the database.
	stats.Duplicates += stats.Read - stats.Invalid - stats.Duplicates - inserted
	return stats, nil
}

type userWriter struct {
	pool *pgxpool.Pool
	size int
}

func newUserWriter(pool *pgxpool.Pool, size int) *userWriter {
	if size <= 0 {
		size = 1000
	}
	return &userWriter{pool: pool, size: size}
}

func (w *userWriter) batchSize() int { return w.size }

func (w *userWriter) write(ctx context.Context, batch []seedUser) (int, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("users").
		Columns("email", "name", "total_orders", "total_spent", "loyalty_points").
		Suffix("ON CONFLICT (email) DO NOTHING")
	for _, u := range batch {
		q = q.Values(u.Email, u.Name, u.TotalOrders, u.TotalSpent, u.LoyaltyPoints)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build insert")
	}
	tag, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "insert users")
	}
	return int(tag.RowsAffected()), nil
}
