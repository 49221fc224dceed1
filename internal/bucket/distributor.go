package bucket

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
)

// Report describes one distributor worker's contribution to one bucket:
// the spill file it wrote and that bucket's accumulated size from this
// worker alone. Distribute does not build Reports; each worker registers
// its spill files with Bucket.AddChunkFile directly.
type Report struct {
	BucketID       int
	SpillPath      string
	AccumulatedSize int64
}

// Distribute implements C7 (§4.7): scan path in worker-sized ranges,
// extract each record's key, binary-search it into set, and accumulate
// bytes in a per-worker clone of set until perWorkerMemory is exceeded,
// at which point the largest over-mean buckets are spilled to disk. The
// master does not concatenate spill files; callers (C8) consume them
// directly from each Bucket's ChunkFiles().
func Distribute(ctx context.Context, rt task.Runtime, fs fsx.FS, path string, ex key.Extractor, set *Set, header bool, bufferSize, perWorkerMemory int64) error {
	size, err := fs.FileSize(path)
	if err != nil {
		return fmt.Errorf("bucket: stat %s: %w", path, err)
	}
	if bufferSize <= 0 {
		bufferSize = fs.PreferredBufferSize()
	}

	var ranges []struct{ begin, end int64 }
	for begin := int64(0); begin < size; begin += bufferSize {
		end := begin + bufferSize
		if end > size {
			end = size
		}
		ranges = append(ranges, struct{ begin, end int64 }{begin, end})
	}

	jobs := make([]task.Job, len(ranges))
	for i, r := range ranges {
		i, r := i, r
		jobs[i] = func(ctx context.Context) error {
			return distributeRange(fs, path, r.begin, r.end, size, ex, set, header && r.begin == 0, perWorkerMemory, i)
		}
	}
	return rt.RunAll(ctx, jobs)
}

// workerBucketState is a worker-local accumulator for one bucket: its
// still-buffered records, the total bytes this worker routed to the bucket
// (buffered and spilled alike), and its spill file (opened lazily,
// append-mode after the first spill), named deterministically so two
// different task indices never collide.
type workerBucketState struct {
	bucket    *Bucket
	buffered  [][]byte
	bytes     int64
	spillPath string
	spillFile *os.File
}

func distributeRange(fs fsx.FS, path string, begin, end, fileSize int64, ex key.Extractor, set *Set, skipHeader bool, perWorkerMemory int64, taskIndex int) error {
	rc, err := fs.OpenByteRange(path, begin, end-begin)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, end-begin)
	n, _ := readAll(rc, buf)
	buf = buf[:n]

	start := 0
	if begin != 0 {
		nl := reader.NextNewline(buf, 0)
		if nl == -1 {
			return nil
		}
		start = nl
	} else if skipHeader {
		if nl := reader.NextNewline(buf, 0); nl != -1 {
			start = nl
		}
	}

	states := make(map[int]*workerBucketState)
	for _, b := range set.Buckets() {
		states[b.ID] = &workerBucketState{bucket: b}
	}

	var totalBuffered int64
	pos := start
	for pos < len(buf) {
		k, lineStart, lineEnd, status := ex.ParseNext(buf, pos)
		if status == reader.LineTooLong {
			break
		}
		owner := set.Lookup(k)
		record := recordBytes(buf, lineStart, lineEnd)

		st := states[owner.ID]
		rec := make([]byte, len(record))
		copy(rec, record)
		st.buffered = append(st.buffered, rec)
		st.bytes += int64(len(rec))
		totalBuffered += int64(len(rec))

		if totalBuffered > perWorkerMemory {
			spilled, err := spillLargest(fs, states, taskIndex, perWorkerMemory/2)
			if err != nil {
				return err
			}
			totalBuffered -= spilled
		}

		pos = lineEnd
	}

	// Final flush: spill every non-empty bucket.
	for _, st := range states {
		if len(st.buffered) == 0 {
			continue
		}
		if err := spillState(fs, st, taskIndex); err != nil {
			return err
		}
	}
	for _, st := range states {
		if st.spillFile != nil {
			if err := st.spillFile.Close(); err != nil {
				return err
			}
			st.bucket.AddChunkFile(st.spillPath, st.bytes)
		}
	}
	return nil
}

// recordBytes returns the raw record bytes for [lineStart,lineEnd),
// appending a trailing newline if the source line lacked one (the file's
// final line with no terminator).
func recordBytes(buf []byte, lineStart, lineEnd int) []byte {
	rec := buf[lineStart:lineEnd]
	if len(rec) == 0 || rec[len(rec)-1] != '\n' {
		withNL := make([]byte, len(rec)+1)
		copy(withNL, rec)
		withNL[len(rec)] = '\n'
		return withNL
	}
	return rec
}

// spillLargest sorts buckets by current in-memory size descending and
// spills the largest ones — each only if its current size exceeds the
// mean across all stored buckets (protecting small buckets from being
// flushed needlessly) — until the worker's total buffered bytes drops
// below target.
func spillLargest(fs fsx.FS, states map[int]*workerBucketState, taskIndex int, target int64) (int64, error) {
	cur := make(map[*workerBucketState]int64)
	var nonEmpty []*workerBucketState
	var sum int64
	for _, st := range states {
		if len(st.buffered) == 0 {
			continue
		}
		for _, rec := range st.buffered {
			cur[st] += int64(len(rec))
		}
		nonEmpty = append(nonEmpty, st)
		sum += cur[st]
	}
	if len(nonEmpty) == 0 {
		return 0, nil
	}
	mean := sum / int64(len(nonEmpty))

	sort.Slice(nonEmpty, func(i, j int) bool { return cur[nonEmpty[i]] > cur[nonEmpty[j]] })

	var spilled int64
	var stillBuffered int64
	for _, st := range nonEmpty {
		stillBuffered += cur[st]
	}
	for _, st := range nonEmpty {
		if stillBuffered <= target {
			break
		}
		if cur[st] <= mean {
			continue
		}
		n := cur[st]
		if err := spillState(fs, st, taskIndex); err != nil {
			return spilled, err
		}
		spilled += n
		stillBuffered -= n
	}
	return spilled, nil
}

func spillState(fs fsx.FS, st *workerBucketState, taskIndex int) error {
	if st.spillFile == nil {
		st.spillPath = deterministicSpillPath(fs, st.bucket.ID, taskIndex)
		f, err := os.OpenFile(st.spillPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		st.spillFile = f
	}
	for _, rec := range st.buffered {
		if _, err := st.spillFile.Write(rec); err != nil {
			return err
		}
	}
	st.buffered = nil
	return nil
}

func deterministicSpillPath(fs fsx.FS, bucketID, taskIndex int) string {
	if local, ok := fs.(*fsx.Local); ok {
		return local.NewTempFile(fmt.Sprintf("bucket_%d_task%d.txt", bucketID, taskIndex))
	}
	return fmt.Sprintf("bucket_%d_task%d.txt", bucketID, taskIndex)
}

func readAll(rc interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := rc.Read(buf[total:])
		total += n
		if err != nil {
			return total, nil
		}
	}
	return total, nil
}
