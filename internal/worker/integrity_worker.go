package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kunledawodu/counterex/internal/observability"
	"github.com/kunledawodu/counterex/internal/service"
)

// IntegrityWorker periodically audits counter holdings against the per-user
// balance mirror. Violations are reported, never repaired.
type IntegrityWorker struct {
	integrityService *service.IntegrityService
	interval         time.Duration
	stopCh           chan struct{}
}

func NewIntegrityWorker(integritySvc *service.IntegrityService) *IntegrityWorker {
	return &IntegrityWorker{
		integrityService: integritySvc,
		interval:         time.Hour,
		stopCh:           make(chan struct{}),
	}
}

// WithInterval sets the audit interval.
func (w *IntegrityWorker) WithInterval(interval time.Duration) *IntegrityWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start runs the audit loop until Stop is called or the context is canceled.
func (w *IntegrityWorker) Start(ctx context.Context) {
	zap.L().Info("integrity worker starting", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("integrity worker stopping", zap.String("reason", "context canceled"))
			return
		case <-w.stopCh:
			zap.L().Info("integrity worker stopping", zap.String("reason", "stop signal"))
			return
		case <-ticker.C:
			w.audit(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *IntegrityWorker) Stop() {
	close(w.stopCh)
}

func (w *IntegrityWorker) audit(ctx context.Context) {
	report, err := w.integrityService.Check(ctx)
	if err != nil {
		observability.IncrementWorkerRun("integrity", "error")
		zap.L().Error("integrity audit failed", zap.Error(err))
		return
	}
	if report.Clean() {
		observability.IncrementWorkerRun("integrity", "ok")
		return
	}
	observability.IncrementWorkerRun("integrity", "violations")
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *IntegrityWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
