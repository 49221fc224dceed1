// Package keysample implements C4, the key-position sampler: a
// Bernoulli-sampled sequence of (key, line_index, next_line_offset) triples
// drawn from a sorted file, with the sample rate adjusted downward under
// memory pressure.
package keysample

import (
	"context"
	"fmt"

	"github.com/peak/ksort/internal/errs"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

const (
	maxBufferSize = 128 << 20
	minAssignmentsPerWorker = 5
)

// ComputeBufferSize solves slave_memory = buffer + 2·keyBytes·totalLines·buffer/fileSize + keyBytes
// for buffer, then clamps to [preferredBufferSize, min(128MiB, maxPreferredBufferSize)]
// and rounds down to a multiple of preferredBufferSize. If the resulting
// buffer would leave any worker with fewer than 5 range assignments, it is
// shrunk toward that many, but never below preferredBufferSize.
func ComputeBufferSize(perWorkerMemory, keyBytes, totalLines, fileSize, preferredBufferSize, maxPreferredBufferSize int64, workerCount int) int64 {
	if preferredBufferSize <= 0 {
		preferredBufferSize = 4 << 20
	}
	denom := 1.0
	if fileSize > 0 {
		denom += 2 * float64(keyBytes) * float64(totalLines) / float64(fileSize)
	}
	buf := float64(perWorkerMemory-keyBytes) / denom
	if buf < float64(preferredBufferSize) {
		buf = float64(preferredBufferSize)
	}
	ceiling := maxPreferredBufferSize
	if ceiling <= 0 || ceiling > maxBufferSize {
		ceiling = maxBufferSize
	}
	if buf > float64(ceiling) {
		buf = float64(ceiling)
	}
	buffer := int64(buf) / preferredBufferSize * preferredBufferSize
	if buffer < preferredBufferSize {
		buffer = preferredBufferSize
	}

	if workerCount < 1 {
		workerCount = 1
	}
	minAssignments := int64(minAssignmentsPerWorker * workerCount)
	if minAssignments > 0 && fileSize/buffer < minAssignments {
		shrunk := fileSize / minAssignments
		if shrunk < preferredBufferSize {
			shrunk = preferredBufferSize
		} else {
			shrunk = shrunk / preferredBufferSize * preferredBufferSize
			if shrunk < preferredBufferSize {
				shrunk = preferredBufferSize
			}
		}
		if shrunk < buffer {
			buffer = shrunk
		}
	}
	return buffer
}

// Sample runs C4 over path. totalLines and meanKeyBytes normally come from
// C3's Evaluate. perWorkerMemory is the memory budget granted to each
// worker, used both by ComputeBufferSize and as the memory-pressure
// threshold for the sequential re-subsampling pass below.
//
// task.Runtime's RunAll contract only guarantees that every job ran and
// aggregates errors, not a mid-flight feedback channel from worker to
// master; the §4.4 memory-pressure adjustment (which the source describes
// as an inter-task rate update) is therefore applied as a single
// post-aggregation pass over the full sample, using the same formula and
// the same per-index rejection test the source applies per task — it
// produces the identical final sample a streaming implementation would,
// since the rejection test is a pure function of index and rate.
func Sample(ctx context.Context, rt task.Runtime, fs fsx.FS, path string, ex key.Extractor, header bool, sampleSize, meanKeyBytes, totalLines, perWorkerMemory int64, rng xrand.Source) ([]key.Position, error) {
	size, err := fs.FileSize(path)
	if err != nil {
		return nil, fmt.Errorf("keysample: stat %s: %w", path, err)
	}
	if size == 0 || totalLines == 0 {
		return nil, nil
	}

	p := float64(sampleSize) / float64(totalLines)
	if p <= 0 {
		return nil, nil
	}
	if p > 1 {
		p = 1
	}

	buffer := ComputeBufferSize(perWorkerMemory, meanKeyBytes, totalLines, size, fs.PreferredBufferSize(), 0, rt.WorkerCount())

	var ranges []struct{ begin, end int64 }
	for begin := int64(0); begin < size; begin += buffer {
		end := begin + buffer
		if end > size {
			end = size
		}
		ranges = append(ranges, struct{ begin, end int64 }{begin, end})
	}

	type workerResult struct {
		samples   []key.Position
		lineCount int64
	}
	results := make([]workerResult, len(ranges))
	jobs := make([]task.Job, len(ranges))
	for i, r := range ranges {
		i, r := i, r
		jobs[i] = func(ctx context.Context) error {
			samples, lines, err := sampleRange(fs, path, r.begin, r.end, ex, header && r.begin == 0, p, rng)
			if err != nil {
				return err
			}
			results[i] = workerResult{samples, lines}
			return nil
		}
	}
	if err := rt.RunAll(ctx, jobs); err != nil {
		return nil, err
	}

	var merged []key.Position
	var cumulative int64
	for _, r := range results {
		adjusted := make([]key.Position, len(r.samples))
		for i, s := range r.samples {
			adjusted[i] = key.Position{Key: s.Key, LineIndex: s.LineIndex + cumulative, ByteOffset: s.ByteOffset}
		}
		merged = mergeAcrossBoundary(merged, adjusted)
		cumulative += r.lineCount
	}

	currentMemory := sampleMemory(merged)
	if perWorkerMemory > 0 && currentMemory > perWorkerMemory*int64(len(ranges)) {
		total := perWorkerMemory * int64(len(ranges))
		ratio := float64(total) * 0.9 / float64(currentMemory)
		merged = rejectionSubsample(merged, ratio, rng)
	}

	return merged, nil
}

// sampleRange scans one buffer-aligned range, extracting a key (and testing
// the Bernoulli acceptance at that record's absolute byte position) only
// for records selected into the sample; it returns the range's full line
// count (used by the caller to convert local to global line indices) along
// with the accepted samples, already deduplicated against adjacent equal
// keys within this worker (keeping the first).
func sampleRange(fs fsx.FS, path string, begin, end int64, ex key.Extractor, skipHeader bool, p float64, rng xrand.Source) ([]key.Position, int64, error) {
	rc, err := fs.OpenByteRange(path, begin, end-begin)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	buf := make([]byte, end-begin)
	n, _ := readAll(rc, buf)
	buf = buf[:n]

	start := 0
	if begin != 0 {
		nl := reader.NextNewline(buf, 0)
		if nl == -1 {
			return nil, 0, nil
		}
		start = nl
	} else if skipHeader {
		if nl := reader.NextNewline(buf, 0); nl != -1 {
			start = nl
		}
	}

	var raw []key.Position
	var line int64
	pos := start
	for pos < len(buf) {
		lineEnd := reader.NextNewline(buf, pos)
		if lineEnd == -1 {
			break
		}
		line++
		absPos := begin + int64(pos)
		if rng.IthRandomDouble(absPos) <= p {
			k, _, _, status := ex.ParseNext(buf, pos)
			if status != reader.LineTooLong {
				if len(raw) > 0 && k.Less(raw[len(raw)-1].Key) {
					return nil, 0, errs.New(errs.UnsortedRecord, "keysample", "", &errs.UnsortedRecordInfo{
						LineIndex:   line,
						ThisKey:     k.String(ex.Sep),
						PreviousKey: raw[len(raw)-1].Key.String(ex.Sep),
					})
				}
				raw = append(raw, key.Position{Key: k.Clone(), LineIndex: line, ByteOffset: begin + int64(lineEnd)})
			}
		}
		pos = lineEnd
	}

	return dedupAdjacent(raw), line, nil
}

// dedupAdjacent collapses runs of adjacent equal keys within one worker's
// sample to their first occurrence (§4.4 within-worker rule).
func dedupAdjacent(samples []key.Position) []key.Position {
	var out []key.Position
	for _, s := range samples {
		if len(out) > 0 && out[len(out)-1].Key.Equal(s.Key) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// mergeAcrossBoundary appends worker's samples to accum, applying the
// cross-worker duplicate rule: if accum's last key equals worker's first
// key, the last accum entry is dropped in favor of worker's (later,
// therefore correct) position (§4.4 cross-worker rule).
func mergeAcrossBoundary(accum, worker []key.Position) []key.Position {
	if len(accum) > 0 && len(worker) > 0 && accum[len(accum)-1].Key.Equal(worker[0].Key) {
		accum = accum[:len(accum)-1]
	}
	return append(accum, worker...)
}

func sampleMemory(samples []key.Position) int64 {
	var n int64
	for _, s := range samples {
		n += s.Key.ByteSize()
	}
	return n
}

// rejectionSubsample re-tests every sample at index i against
// rng.IthRandomDouble(i) <= ratio, keeping only the accepted ones — the
// sequential equivalent of the source's per-task rate-adjustment rejection
// test.
func rejectionSubsample(samples []key.Position, ratio float64, rng xrand.Source) []key.Position {
	if ratio >= 1 {
		return samples
	}
	if ratio < 0 {
		ratio = 0
	}
	var out []key.Position
	for i, s := range samples {
		if rng.IthRandomDouble(int64(i)) <= ratio {
			out = append(out, s)
		}
	}
	return out
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
