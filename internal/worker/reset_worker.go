package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/idempotency"
	"github.com/kunledawodu/counterex/internal/observability"
	"github.com/kunledawodu/counterex/internal/service"
)

// ResetWorker sweeps stale daily order counts in the background. Rollover is
// also applied lazily inside each task, so the sweep only catches counters
// that nobody has touched since their last active day. The same pass purges
// expired idempotency records.
type ResetWorker struct {
	resetService *service.ResetService
	idemStore    *idempotency.Store
	interval     time.Duration
	stopCh       chan struct{}
}

func NewResetWorker(resetSvc *service.ResetService, idemStore *idempotency.Store) *ResetWorker {
	return &ResetWorker{
		resetService: resetSvc,
		idemStore:    idemStore,
		interval:     10 * time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithInterval sets the sweep interval.
func (w *ResetWorker) WithInterval(interval time.Duration) *ResetWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start runs the sweep loop until Stop is called or the context is canceled.
func (w *ResetWorker) Start(ctx context.Context) {
	zap.L().Info("reset worker starting", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reset worker stopping", zap.String("reason", "context canceled"))
			return
		case <-w.stopCh:
			zap.L().Info("reset worker stopping", zap.String("reason", "stop signal"))
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *ResetWorker) Stop() {
	close(w.stopCh)
}

// SweepOnce runs a single sweep immediately. Useful for manual triggering.
func (w *ResetWorker) SweepOnce(ctx context.Context) error {
	_, err := w.resetService.RolloverAll(ctx)
	return err
}

func (w *ResetWorker) sweep(ctx context.Context) {
	rows, err := w.resetService.RolloverAll(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reset", "error")
		zap.L().Error("daily rollover sweep failed", zap.Error(err))
	} else {
		observability.IncrementWorkerRun("reset", "ok")
		if rows > 0 {
			zap.L().Info("daily rollover sweep", zap.Int64("counters", rows))
		}
	}

	if w.idemStore == nil {
		return
	}
	if purged, err := w.idemStore.Purge(ctx); err != nil {
		zap.L().Warn("idempotency purge failed", zap.Error(err))
	} else if purged > 0 {
		zap.L().Info("idempotency purge", zap.Int64("records", purged))
	}
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *ResetWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
