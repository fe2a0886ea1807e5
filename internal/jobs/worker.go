package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

// Pass is one unit of periodic background work, such as a record backfill sweep.
type Pass interface {
	RunPass(ctx context.Context) error
}

// Worker runs a Pass once on start and then on every tick until stopped. A failing pass is
// logged and the next tick runs as usual.
type Worker struct {
	name     string
	pass     Pass
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(name string, pass Pass, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		name:     name,
		pass:     pass,
		interval: interval,
		logger:   logger.With(zap.String("worker", name)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("reason", "context cancelled"))
			return
		case <-w.stop:
			w.logger.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.pass.RunPass(ctx); err != nil {
		w.logger.Error("pass failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		telemetry.CaptureError(ctx, err)
		return
	}
	w.logger.Debug("pass finished", zap.Duration("elapsed", time.Since(start)))
}

// Stop signals the loop and waits for the running pass to return. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
