// Package dispatcher fans a run's queue out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// ErrQueueNotDrained reports records left behind because every worker exited.
var ErrQueueNotDrained = errors.New("queue not drained")

// Runner is a worker loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Result summarizes how the pool finished.
type Result struct {
	Workers       int
	FailedWorkers int
	Undispatched  int
}

// Dispatcher runs exactly len(workers) goroutines over one queue.
type Dispatcher struct {
	queue   enrich.Queue
	workers []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue enrich.Queue, workers []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, workers: workers, logger: logger.Named("dispatcher")}
}

// Run blocks until every worker returns. A worker-level error ends only that
// worker and is counted; the group is not canceled, so the remaining workers
// keep draining. Run fails when ctx is canceled or when work is left in the
// queue after all workers have exited, in which case the first worker error
// is joined to ErrQueueNotDrained.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	var failed atomic.Int64
	var g errgroup.Group
	for i, w := range d.workers {
		g.Go(func() error {
			err := w.Run(ctx)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			failed.Add(1)
			d.logger.Error("worker exited with error", zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("worker %d: %w", i, err)
		})
	}
	workerErr := g.Wait()

	res := Result{
		Workers:       len(d.workers),
		FailedWorkers: int(failed.Load()),
		Undispatched:  d.queue.Len(),
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("dispatch interrupted: %w", err)
	}
	if res.Undispatched > 0 {
		err := fmt.Errorf("%d records left after %d of %d workers failed: %w",
			res.Undispatched, res.FailedWorkers, res.Workers, ErrQueueNotDrained)
		return res, errors.Join(err, workerErr)
	}
	return res, nil
}
