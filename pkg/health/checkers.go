package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a GC cycle that completed since the previous
// call paused longer than threshold. Older pauses are not reported again.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return gcPauseCheck(threshold, debug.ReadGCStats)
}

func gcPauseCheck(threshold time.Duration, read func(*debug.GCStats)) CheckFunc {
	var (
		mu     sync.Mutex
		lastGC int64
	)
	return func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()

		var stats debug.GCStats
		read(&stats)
		fresh := stats.NumGC - lastGC
		lastGC = stats.NumGC

		// Pause is ordered most recent first and holds a bounded history.
		if fresh > int64(len(stats.Pause)) {
			fresh = int64(len(stats.Pause))
		}
		for _, p := range stats.Pause[:fresh] {
			if p > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", p, threshold)
			}
		}
		return nil
	}
}

// Pinger is implemented by connection pools such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}
