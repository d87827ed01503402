// Command seed-db loads users from JSON-lines files into the database. Files
// ending in .gz are decompressed on the fly. Emails repeated across the input
// are inserted once; emails already stored are left untouched.
package main

import (
	"context"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rewards-shop/internal/storage/postgres"
)

type config struct {
	DatabaseURL string   `flag:"database-url" usage:"PostgreSQL connection URL (DATABASE_URL)"`
	Files       []string `flag:"files" usage:"Comma-separated user files (JSON lines, optionally .gz)"`
	BatchSize   int      `default:"1000" flag:"batch-size" usage:"Users per INSERT statement"`
	Capacity    uint     `default:"1000000" flag:"capacity" usage:"Expected number of users, sizes the duplicate filter"`
	Migrate     bool     `default:"true" flag:"migrate" usage:"Apply migrations before seeding"`
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		if err := aconfig.LoaderFor(&cfg, aconfig.Config{SkipFiles: true, AllowUnknownEnvs: true}).Load(); err != nil {
			return errors.Wrap(err, "load config")
		}
		if cfg.DatabaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if len(cfg.Files) == 0 {
			return errors.New("at least one input file is required: set --files")
		}
		return run(zctx.Base(ctx, lg), cfg)
	})
}

func run(ctx context.Context, cfg config) error {
	lg := zctx.From(ctx)

	lg.Info("Scanning input for duplicate emails", zap.Strings("files", cfg.Files))
	suspects, err := findSuspects(ctx, cfg.Files, cfg.Capacity)
	if err != nil {
		return errors.Wrap(err, "scan input")
	}
	lg.Info("Scan complete", zap.Int("suspects", len(suspects)))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}

	stats, err := load(ctx, cfg.Files, newDeduper(suspects), newUserWriter(pool, cfg.BatchSize))
	if err != nil {
		return err
	}
	lg.Info("Seed completed",
		zap.Int("read", stats.Read),
		zap.Int("inserted", stats.Inserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
	)
	return nil
}
