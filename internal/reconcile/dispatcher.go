package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes a single job.
type Runner interface {
	Run(ctx context.Context, job Job) Outcome
}

// Dispatcher starts jobs in the background. There is no queue and no
// concurrency limit; callers cannot observe a job's result.
type Dispatcher struct {
	runner  Runner
	timeout time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher returns a Dispatcher that bounds each run by timeout. A
// non-positive timeout falls back to 30 seconds.
func NewDispatcher(runner Runner, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{runner: runner, timeout: timeout, log: log}
}

// Dispatch runs job on its own goroutine with a context detached from any
// request, bounded by the dispatcher timeout.
func (d *Dispatcher) Dispatch(job Job) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Reconciliation panicked",
					zap.String("job_id", job.ID),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		out := d.runner.Run(ctx, job)

		d.log.Info("Reconciliation finished",
			zap.String("job_id", job.ID),
			zap.Bool("matched", out.Matched),
			zap.Bool("wrote", out.Wrote),
			zap.Bool("noted", out.Noted),
			zap.Bool("aborted", out.Aborted),
			zap.Bool("skipped", out.Skipped),
			zap.Duration("took", time.Since(start)))
	}()
}

// Wait blocks until every dispatched job has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
