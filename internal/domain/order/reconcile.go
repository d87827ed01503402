package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ReconcilerConfig controls which stuck placements are picked up.
type ReconcilerConfig struct {
	// StaleAfter is how long an order must sit in an intermediate state
	// before it is resumed. It must exceed the longest in-flight placement.
	StaleAfter time.Duration
	// BatchSize caps the orders handled per pass.
	BatchSize int
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Resumed int
	Failed  int
}

// Reconciler finishes placements that stopped after the order was persisted.
type Reconciler struct {
	orders  Repository
	stats   StatsApplier
	loyalty Loyalty
	cfg     ReconcilerConfig
	now     func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(orders Repository, stats StatsApplier, loyalty Loyalty, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		orders:  orders,
		stats:   stats,
		loyalty: loyalty,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start runs a reconciliation pass every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) error {
	lg := zctx.From(ctx)
	lg.Info("Reconciler started",
		zap.Duration("interval", interval),
		zap.Duration("stale_after", r.cfg.StaleAfter),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Reconciler stopped")
			return nil
		case <-ticker.C:
			report, err := r.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Error("Reconcile pass failed", zap.Error(err))
				continue
			}
			if report.Resumed > 0 || report.Failed > 0 {
				lg.Info("Reconcile pass finished",
					zap.Int("resumed", report.Resumed),
					zap.Int("failed", report.Failed),
				)
			}
		}
	}
}

// Run performs a single pass. Failures on individual orders are logged and
// counted; only a failure to list candidates is returned.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	stale, err := r.orders.ListStale(ctx, StaleQuery{
		States:        []PlacementState{StateOrderSaved, StateStatsUpdated},
		UpdatedBefore: r.now().Add(-r.cfg.StaleAfter),
		Limit:         r.cfg.BatchSize,
	})
	if err != nil {
		return report, errors.Wrap(err, "list stale orders")
	}

	for i := range stale {
		o := &stale[i]
		if err := r.resume(ctx, o); err != nil {
			report.Failed++
			zctx.From(ctx).Warn("Failed to resume order placement",
				zap.Int64("order_id", o.ID),
				zap.String("state", string(o.State)),
				zap.Error(err),
			)
			continue
		}
		report.Resumed++
	}
	return report, nil
}

// resume drives o forward from its recorded state. Unlike the placement flow,
// stats are added to the stored user totals in the same transaction as the
// state change.
func (r *Reconciler) resume(ctx context.Context, o *Order) error {
	if o.State == StateOrderSaved {
		applied, err := r.stats.ApplyUserStats(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "apply user stats")
		}
		if !applied {
			// Advanced elsewhere since it was listed; the next pass sees the new state.
			return nil
		}
		o.State = StateStatsUpdated
	}

	if o.State == StateStatsUpdated {
		if err := r.loyalty.ConfirmLoyalty(ctx, o.UserID, o.TotalAmount); err != nil {
			return errors.Wrap(err, "confirm loyalty")
		}
		if err := r.orders.SetState(ctx, o.ID, StateLoyaltyConfirmed); err != nil {
			return errors.Wrap(err, "record loyalty confirmed")
		}
		o.State = StateLoyaltyConfirmed
	}
	return nil
}
