package parallel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/parallel"
)

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := parallel.New(3)
	var cur, max int32

	for i := 0; i < 20; i++ {
		sem.Acquire()
		go func() {
			defer sem.Release()
			n := atomic.AddInt32(&cur, 1)
			for {
				m := atomic.LoadInt32(&max)
				if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&cur, -1)
		}()
	}
	sem.Close()

	assert.Assert(t, max <= 3, "observed concurrency %d exceeded the limit of 3", max)
}

func TestSemaphoreZeroWorkersClampsToOne(t *testing.T) {
	sem := parallel.New(0)
	sem.Acquire()
	done := make(chan struct{})
	go func() {
		sem.Acquire()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire should have blocked with only one slot")
	case <-time.After(20 * time.Millisecond):
	}
	sem.Release()
	<-done
	sem.Release()
	sem.Close()
}
