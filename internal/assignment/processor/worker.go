package processor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/ridelink/transferhub/internal/assignment/errors"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// BatchProcessor is what the worker schedules.
type BatchProcessor interface {
	ProcessPending(ctx context.Context, batchSize int) (int, []error)
}

// Worker runs the pending-booking sweep on a fixed interval. Transient
// database failures retry the sweep with exponential backoff; anything
// else waits for the next tick.
type Worker struct {
	processor BatchProcessor
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewWorker(p BatchProcessor, interval time.Duration, batchSize int, logger *zap.Logger) *Worker {
	return &Worker{
		processor: p,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.Named("booking_worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Booking worker started",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Booking worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	operation := func() error {
		sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()

		processed, errs := w.processor.ProcessPending(sctx, w.batchSize)
		for _, err := range errs {
			if errors.Is(err, e.ErrTransientDB) {
				return err
			}
		}
		if processed > 0 || len(errs) > 0 {
			w.logger.Info("Sweep complete",
				zap.Int("processed", processed),
				zap.Int("errors", len(errs)),
			)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = w.interval
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		w.logger.Error("Sweep abandoned after retries", zap.Error(err))
	}
}
