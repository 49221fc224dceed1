// Package parallel is the goroutine-limiting primitive underneath
// internal/task. Adapted from the teacher's parallel package: the same
// semaphore+WaitGroup shape, but built per call site via New instead of a
// package-level global — §9 "Global state" is explicit that the driver,
// resource manager and progress sink must be passed in, not hidden behind
// process statics.
package parallel

import "sync"

// Semaphore bounds concurrent work to a fixed worker count.
type Semaphore struct {
	wg  sync.WaitGroup
	sem chan struct{}
}

// New returns a Semaphore allowing up to workers concurrent holders.
func New(workers int) *Semaphore {
	if workers < 1 {
		workers = 1
	}
	return &Semaphore{sem: make(chan struct{}, workers)}
}

// Acquire blocks until a slot is free, then reserves it.
func (s *Semaphore) Acquire() {
	s.sem <- struct{}{}
	s.wg.Add(1)
}

// Release frees a slot reserved by Acquire.
func (s *Semaphore) Release() {
	s.wg.Done()
	<-s.sem
}

// Close waits for every acquired slot to be released.
func (s *Semaphore) Close() {
	s.wg.Wait()
}
