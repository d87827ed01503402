// Package app wires configuration, storage, the rewards engine client, domain
// services and the HTTP server into a running process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rewards-shop/internal/domain/order"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/domain/user"
	"github.com/xenking/rewards-shop/internal/handler"
	"github.com/xenking/rewards-shop/internal/rewardsapi"
	"github.com/xenking/rewards-shop/internal/storage/postgres"
	"github.com/xenking/rewards-shop/pkg/health"
	"github.com/xenking/rewards-shop/pkg/httpmiddleware"
)

const serviceName = "rewards-shop"

// Run creates all dependencies, starts the HTTP server and the placement
// reconciler, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := newHealth(pool)
	healthSvc.Start(ctx, 10*time.Second)

	svc, err := newServices(pool, cfg, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newHTTPHandler(gctx, cfg, svc, healthSvc, m),
	}

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	if cfg.Reconcile.Interval > 0 {
		g.Go(func() error {
			rctx := zctx.With(gctx, zap.String("component", "reconciler"))
			return svc.reconciler.Start(rctx, cfg.Reconcile.Interval)
		})
	} else {
		lg.Warn("Placement reconciler disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	healthSvc.SetReady(true)
	return g.Wait()
}

func newHealth(pool *pgxpool.Pool) *health.Health {
	h := health.New()
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	h.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))
	return h
}

type services struct {
	users      *user.Service
	rewards    *rewards.Service
	orders     *order.Service
	reconciler *order.Reconciler
}

func newServices(pool *pgxpool.Pool, cfg *Config, tel httpmiddleware.Telemetry) (*services, error) {
	userRepo := postgres.NewUserRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	engine, err := rewardsapi.NewClient(rewardsapi.Config{
		BaseURL:        cfg.Rewards.BaseURL,
		APIKey:         cfg.Rewards.APIKey,
		Timeout:        cfg.Rewards.Timeout,
		SessionChannel: cfg.Rewards.Channel,
	},
		rewardsapi.WithTracerProvider(tel.TracerProvider()),
		rewardsapi.WithMeterProvider(tel.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rewards client")
	}

	svc := &services{
		users:   user.NewService(userRepo),
		rewards: rewards.NewService(engine),
	}
	svc.orders, err = order.NewService(svc.users, svc.rewards, orderRepo,
		order.WithTracerProvider(tel.TracerProvider()),
		order.WithMeterProvider(tel.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	svc.reconciler = order.NewReconciler(orderRepo, orderRepo, svc.rewards, order.ReconcilerConfig{
		StaleAfter: cfg.Reconcile.StaleAfter,
		BatchSize:  cfg.Reconcile.BatchSize,
	})
	return svc, nil
}

// newHTTPHandler builds the full middleware chain around the API router. The
// rate limiter forgets idle clients until ctx is done.
func newHTTPHandler(ctx context.Context, cfg *Config, svc *services, healthSvc *health.Health, tel httpmiddleware.Telemetry) http.Handler {
	// Route-aware middlewares run inside chi so the matched pattern is known.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
		httpmiddleware.Labeler(httpmiddleware.ChiRoute),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(svc.users, svc.rewards, svc.orders).Register(router)

	return httpmiddleware.Wrap(router, middlewares(ctx, cfg, tel)...)
}

// middlewares lists the outer chain, outermost first. Recovery sits inside
// InjectLogger so panics are logged with the request logger.
func middlewares(ctx context.Context, cfg *Config, tel httpmiddleware.Telemetry) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument(serviceName, tel),
	}
}
