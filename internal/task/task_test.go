package task_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/task"
)

func TestRunAllSucceeds(t *testing.T) {
	rt := task.New(4, nil)
	var n int32
	jobs := make([]task.Job, 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		}
	}
	err := rt.RunAll(context.Background(), jobs)
	assert.NilError(t, err)
	assert.Equal(t, n, int32(20))
}

func TestRunAllAggregatesErrors(t *testing.T) {
	rt := task.New(2, nil)
	boom := errors.New("boom")
	jobs := []task.Job{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return boom },
	}
	err := rt.RunAll(context.Background(), jobs)
	assert.ErrorContains(t, err, "boom")
}

func TestRunAllRespectsWorkerLimit(t *testing.T) {
	rt := task.New(1, nil)
	var concurrent, maxConcurrent int32
	jobs := make([]task.Job, 8)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			c := atomic.AddInt32(&concurrent, 1)
			defer atomic.AddInt32(&concurrent, -1)
			if c > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, c)
			}
			return nil
		}
	}
	assert.NilError(t, rt.RunAll(context.Background(), jobs))
	assert.Equal(t, maxConcurrent, int32(1))
}
