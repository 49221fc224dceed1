// Adapted from the teacher's orderedwriter package (an unbounded buffer
// for ordering concurrent writes to a non-seekable writer), indexed by a
// sequence number such as a bucket index instead of a byte offset. No other
// package uses it: the sort driver's concatenation step runs after every
// bucket sort has returned and writes the sorted bucket files in bucket
// order itself.
package fsx

import (
	"container/list"
	"io"
	"sync"
)

type orderedChunk struct {
	index int64
	value []byte
}

// OrderedWriter serializes writes that arrive out of order (keyed by a
// monotonically increasing index, e.g. bucket id) into a single writer, in
// index order, flushing whatever prefix of indices is contiguous as soon
// as it's available.
type OrderedWriter struct {
	mu      sync.Mutex
	list    *list.List
	w       io.Writer
	written int64 // next index expected
}

// NewOrderedWriter returns an OrderedWriter over w, expecting indices to
// start at 0 and increase by 1.
func NewOrderedWriter(w io.Writer) *OrderedWriter {
	return &OrderedWriter{list: list.New(), w: w}
}

// WriteAt enqueues p for logical position index; if index is the next
// expected position (and, transitively, unblocks any subsequent queued
// positions), the writer flushes immediately.
func (w *OrderedWriter) WriteAt(p []byte, index int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.list.Len() == 0 && w.written == index {
		if _, err := w.w.Write(p); err != nil {
			return err
		}
		w.written++
		return nil
	}

	b := make([]byte, len(p))
	copy(b, p)
	inserted := false
	for e := w.list.Front(); e != nil; e = e.Next() {
		v := e.Value.(*orderedChunk)
		if index < v.index {
			w.list.InsertBefore(&orderedChunk{index, b}, e)
			inserted = true
			break
		}
	}
	if !inserted {
		w.list.PushBack(&orderedChunk{index, b})
	}

	var drained []*list.Element
	for e := w.list.Front(); e != nil; e = e.Next() {
		v := e.Value.(*orderedChunk)
		if v.index != w.written {
			break
		}
		if _, err := w.w.Write(v.value); err != nil {
			return err
		}
		w.written++
		drained = append(drained, e)
	}
	for _, e := range drained {
		w.list.Remove(e)
	}
	return nil
}

// Pending returns the number of out-of-order chunks still buffered,
// waiting on an earlier index to arrive.
func (w *OrderedWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.list.Len()
}
