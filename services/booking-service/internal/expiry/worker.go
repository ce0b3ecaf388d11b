// Package expiry fails pending appointments whose payment never arrived.
package expiry

import (
	"context"
	"log/slog"
	"time"
)

type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

type Worker struct {
	svc       Expirer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewWorker(svc Expirer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		svc:       svc,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and reports how many appointments it failed.
func (w *Worker) Sweep(ctx context.Context) int {
	n, err := w.svc.ExpireStale(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("expiry sweep failed", "err", err, "expired", n)
		return n
	}
	if n > 0 {
		w.logger.Info("expired pending appointments", "count", n)
	}
	return n
}
