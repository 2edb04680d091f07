package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// reconciler is the service-side entry point for the sweep.
type reconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) error
}

// Worker periodically replays reconciliation for orders stuck in PENDING
// past a timeout. The gateway redelivers webhooks on its own; this sweep
// covers deliveries that never arrived at all.
type Worker struct {
	reconciler    reconciler
	sweepInterval time.Duration
	staleAfter    time.Duration
	batchSize     int
	stopCh        chan struct{}
}

// NewWorker creates a new sweeper worker.
func NewWorker(reconciler reconciler) *Worker {
	sweepIntervalSeconds := viper.GetInt("sweeper.interval_seconds")
	if sweepIntervalSeconds == 0 {
		sweepIntervalSeconds = 60
	}

	staleAfterSeconds := viper.GetInt("sweeper.stale_after_seconds")
	if staleAfterSeconds == 0 {
		staleAfterSeconds = 900
	}

	batchSize := viper.GetInt("sweeper.batch_size")
	if batchSize == 0 {
		batchSize = 50
	}

	return &Worker{
		reconciler:    reconciler,
		sweepInterval: time.Duration(sweepIntervalSeconds) * time.Second,
		staleAfter:    time.Duration(staleAfterSeconds) * time.Second,
		batchSize:     batchSize,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	slog.Info("Sweeper worker started",
		"sweep_interval", w.sweepInterval,
		"stale_after", w.staleAfter,
		"batch_size", w.batchSize,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Sweeper worker stopped")

			return
		case <-ticker.C:
			if err := w.reconciler.ReconcileStale(ctx, w.staleAfter, w.batchSize); err != nil {
				slog.Error("Stale order sweep failed", "error", err)
			}
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}
