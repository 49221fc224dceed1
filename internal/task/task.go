// Package task implements the master/worker task runtime assumed by §6:
// a pool of workers draining a stream of pure-function jobs, submitted and
// aggregated in order (§5 "Ordering guarantees"), with cooperative
// interruption and multierror-aggregated failure reporting. It is the
// generic parallel-task runtime the spec places out of scope, adapted
// in-house from the teacher's semaphore+WaitGroup `parallel` package
// (kept, underneath, as the goroutine-limiting primitive) plus
// golang.org/x/sync/errgroup for context-aware cancellation.
package task

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/peak/ksort/internal/errs"
	"github.com/peak/ksort/internal/parallel"
	"github.com/peak/ksort/internal/progress"
)

// Job is a pure function from (cancelable context) to error — the "pure
// function from inputs to outputs" contract of §5: all of a job's inputs
// must already be captured in its closure; it returns only success/failure.
type Job func(ctx context.Context) error

// Runtime runs a batch of Jobs honoring a worker-count limit, in
// submission order for any component that relies on index-ordered results
// (the caller indexes results by slice position, not by completion order;
// RunAll only guarantees all jobs ran and aggregates errors — callers
// needing order-sensitive aggregation write into a pre-sized slice by
// index, as fileindex/keysample/keyfinder/distributor all do).
type Runtime interface {
	// RunAll runs every job, respecting the runtime's worker limit, and
	// returns a *multierror.Error aggregating every job's error (nil if
	// all succeeded). If ctx is canceled mid-run, outstanding jobs are not
	// started and RunAll returns promptly with an errs.Interrupted error
	// folded into the aggregate.
	RunAll(ctx context.Context, jobs []Job) error
	// WorkerCount returns the configured concurrency limit.
	WorkerCount() int
}

type runtime struct {
	workers int
	sink    progress.Sink
}

// New returns a Runtime backed by workers goroutines, reporting progress
// through sink (progress.Noop() if the caller doesn't want one).
func New(workers int, sink progress.Sink) Runtime {
	if workers < 1 {
		workers = 1
	}
	if sink == nil {
		sink = progress.Noop()
	}
	return &runtime{workers: workers, sink: sink}
}

func (r *runtime) WorkerCount() int { return r.workers }

func (r *runtime) RunAll(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	sem := parallel.New(r.workers)
	defer sem.Close()

	var merr *multierror.Error
	var merrMu sync.Mutex

	r.sink.BeginTask(len(jobs))
	defer r.sink.EndTask()

	for i, job := range jobs {
		i, job := i, job
		if r.sink.IsInterruptionRequested() {
			merrMu.Lock()
			merr = multierror.Append(merr, errs.New(errs.Interrupted, "task", "", context.Canceled))
			merrMu.Unlock()
			break
		}
		sem.Acquire()
		g.Go(func() error {
			defer sem.Release()
			if gctx.Err() != nil {
				return nil
			}
			err := job(gctx)
			r.sink.DisplayProgression(i + 1, len(jobs))
			if err != nil {
				merrMu.Lock()
				merr = multierror.Append(merr, err)
				merrMu.Unlock()
				if errs.IsInterrupted(err) {
					cancel()
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	if ctx.Err() != nil && !errs.IsInterrupted(merr.ErrorOrNil()) {
		merr = multierror.Append(merr, errs.New(errs.Interrupted, "task", "", context.Canceled))
	}
	return merr.ErrorOrNil()
}
