// Package bucket implements the Bucket/BucketSet data model (§3) and the
// bucket distributor (C7, §4.7).
package bucket

import (
	"sort"
	"sync"

	"github.com/peak/ksort/internal/key"
)

// Bound is an optional key bound with an inclusive/exclusive flag.
type Bound struct {
	Key      key.Key
	Present  bool
	Exclusive bool
}

// NoBound is the absent bound (−∞ or +∞ depending on position).
var NoBound = Bound{}

// InclusiveBound returns a present, inclusive bound at k.
func InclusiveBound(k key.Key) Bound { return Bound{Key: k, Present: true} }

// ExclusiveBound returns a present, exclusive bound at k.
func ExclusiveBound(k key.Key) Bound { return Bound{Key: k, Present: true, Exclusive: true} }

// Bucket is a key-range container plus its pending records, as defined in
// §3: a key k belongs to this bucket iff
// (lower is None or lower <cmp(excl)> k) and (upper is None or k <cmp(excl)> upper).
type Bucket struct {
	ID      int
	Lower   Bound
	Upper   Bound

	mu            sync.Mutex
	chunkFiles    []string
	sizeBytes     int64
	sortedOutput  string
	inMemory      [][]byte
	inMemoryBytes int64
}

// NewBucket returns a Bucket with the given id and bounds.
func NewBucket(id int, lower, upper Bound) *Bucket {
	return &Bucket{ID: id, Lower: lower, Upper: upper}
}

// Singleton reports whether this bucket holds exactly one key value: both
// bounds present, inclusive, and equal.
func (b *Bucket) Singleton() bool {
	return b.Lower.Present && b.Upper.Present && !b.Lower.Exclusive && !b.Upper.Exclusive && b.Lower.Key.Equal(b.Upper.Key)
}

// Contains reports whether k belongs to this bucket per the §3 predicate.
func (b *Bucket) Contains(k key.Key) bool {
	if b.Lower.Present {
		c := b.Lower.Key.Compare(k)
		if b.Lower.Exclusive {
			if c >= 0 {
				return false
			}
		} else if c > 0 {
			return false
		}
	}
	if b.Upper.Present {
		c := k.Compare(b.Upper.Key)
		if b.Upper.Exclusive {
			if c >= 0 {
				return false
			}
		} else if c > 0 {
			return false
		}
	}
	return true
}

// AppendRecord appends raw record bytes (including trailing newline) to
// the bucket's in-memory buffer and returns the buffer's new total size,
// used by the distributor's spill policy.
func (b *Bucket) AppendRecord(record []byte) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(record))
	copy(cp, record)
	b.inMemory = append(b.inMemory, cp)
	b.inMemoryBytes += int64(len(cp))
	return b.inMemoryBytes
}

// InMemoryBytes returns the bucket's current unspilled byte size.
func (b *Bucket) InMemoryBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inMemoryBytes
}

// DrainInMemory returns and clears the bucket's in-memory record buffer,
// for the distributor to spill to disk.
func (b *Bucket) DrainInMemory() ([][]byte, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs, n := b.inMemory, b.inMemoryBytes
	b.inMemory = nil
	b.inMemoryBytes = 0
	return recs, n
}

// AddChunkFile registers a spill/chunk file produced for this bucket (by
// any worker) and accumulates its size.
func (b *Bucket) AddChunkFile(path string, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunkFiles = append(b.chunkFiles, path)
	b.sizeBytes += size
}

// ChunkFiles returns the bucket's accumulated chunk file paths.
func (b *Bucket) ChunkFiles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.chunkFiles))
	copy(out, b.chunkFiles)
	return out
}

// SizeBytes returns the bucket's total accumulated (on-disk + in-memory)
// byte size.
func (b *Bucket) SizeBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizeBytes + b.inMemoryBytes
}

// SetSortedOutput records the path C8 wrote this bucket's sorted records
// to.
func (b *Bucket) SetSortedOutput(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sortedOutput = path
}

// SortedOutput returns the bucket's sorted output path, if set.
func (b *Bucket) SortedOutput() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedOutput
}

// Set is an ordered partition of the key space into buckets (invariant
// BUCKETS, §3): adjacent buckets agree on their shared bound — one
// inclusive, the other exclusive — and lookup is a single O(log n) binary
// search over the ordered split-key array.
type Set struct {
	buckets []*Bucket
	splits  []key.Key // buckets[i] upper == splits[i] for i < len(splits)
}

// NewSet builds a BucketSet covering the whole key space in K buckets
// separated by the given len(splits) = K-1 ascending split keys.
// Duplicate-valued splits must already have been removed by the caller
// (C6's contract).
func NewSet(splits []key.Key) *Set {
	s := &Set{splits: splits}
	n := len(splits) + 1
	s.buckets = make([]*Bucket, n)
	for i := 0; i < n; i++ {
		var lower, upper Bound
		if i > 0 {
			lower = ExclusiveBound(splits[i-1])
		}
		if i < len(splits) {
			upper = InclusiveBound(splits[i])
		}
		s.buckets[i] = NewBucket(i, lower, upper)
	}
	return s
}

// Buckets returns the set's buckets in ascending key order.
func (s *Set) Buckets() []*Bucket { return s.buckets }

// Lookup returns the bucket containing k via a single binary search over
// the split-key array (invariant BUCKETS).
func (s *Set) Lookup(k key.Key) *Bucket {
	i := sort.Search(len(s.splits), func(i int) bool {
		return !s.splits[i].Less(k)
	})
	return s.buckets[i]
}

// Len returns the number of buckets.
func (s *Set) Len() int { return len(s.buckets) }
