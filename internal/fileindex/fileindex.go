// Package fileindex implements C2, the file indexer: it splits a file
// into buffer_size-aligned sub-ranges, aligns each to the next newline,
// and emits evenly spaced (offset, cumulative_line_number) checkpoints per
// range.
package fileindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
)

// Checkpoint is one (offset, cumulative line index) pair.
type Checkpoint struct {
	Offset int64
	Line   int64
}

// Range is one buffer-aligned sub-range of the file, [Begin,End).
type Range struct {
	Begin, End int64
}

// Index runs C2 over path: it splits the file into ceil(size/bufferSize)
// buffer-aligned ranges, assigns one worker task per range, and
// concatenates the per-worker results in task-submission order, prepending
// (0,0). positionsPerBuffer checkpoints are requested per range; a range
// smaller than the full buffer still emits at least one.
func Index(ctx context.Context, rt task.Runtime, fs fsx.FS, path string, bufferSize int64, positionsPerBuffer int) ([]Checkpoint, error) {
	size, err := fs.FileSize(path)
	if err != nil {
		return nil, fmt.Errorf("fileindex: stat %s: %w", path, err)
	}
	if size == 0 {
		return []Checkpoint{{0, 0}}, nil
	}
	if bufferSize <= 0 {
		bufferSize = fs.PreferredBufferSize()
	}

	var ranges []Range
	for begin := int64(0); begin < size; begin += bufferSize {
		end := begin + bufferSize
		if end > size {
			end = size
		}
		ranges = append(ranges, Range{begin, end})
	}

	type workerResult struct {
		checkpoints []Checkpoint
		lineCount   int64
	}

	results := make([]workerResult, len(ranges))
	jobs := make([]task.Job, len(ranges))
	for i, r := range ranges {
		i, r := i, r
		jobs[i] = func(ctx context.Context) error {
			cps, lines, err := indexRange(fs, path, r, positionsPerBuffer)
			if err != nil {
				return err
			}
			results[i] = workerResult{cps, lines}
			return nil
		}
	}

	if err := rt.RunAll(ctx, jobs); err != nil {
		return nil, err
	}

	out := []Checkpoint{{0, 0}}
	var cumulative int64
	for i, r := range results {
		for _, cp := range r.checkpoints {
			out = append(out, Checkpoint{cp.Offset, cp.Line + cumulative})
		}
		cumulative += r.lineCount
		_ = i
	}
	return out, nil
}

func indexRange(fs fsx.FS, path string, r Range, positionsPerBuffer int) ([]Checkpoint, int64, error) {
	rc, err := fs.OpenByteRange(path, r.Begin, r.End-r.Begin)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	buf := make([]byte, r.End-r.Begin)
	n, err := readFull(rc, buf)
	buf = buf[:n]

	start := 0
	if r.Begin != 0 {
		nl := reader.NextNewline(buf, 0)
		if nl == -1 {
			return nil, 0, nil
		}
		start = nl
	}

	var offsets []int64
	var line int64
	pos := start
	for pos < len(buf) {
		lineEnd := reader.NextNewline(buf, pos)
		if lineEnd == -1 {
			break
		}
		line++
		offsets = append(offsets, r.Begin+int64(lineEnd))
		pos = lineEnd
	}

	if len(offsets) == 0 {
		return nil, line, err
	}

	checkpoints := evenlySpaced(offsets, positionsPerBuffer)
	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Offset < checkpoints[j].Offset })
	return checkpoints, line, err
}

// evenlySpaced picks up to count offsets, evenly spaced across the
// (line-ordered) offsets slice, always including the last one so the
// range's tail is covered even when count is small.
func evenlySpaced(offsets []int64, count int) []Checkpoint {
	if count <= 0 {
		count = 1
	}
	n := len(offsets)
	if n <= count {
		out := make([]Checkpoint, n)
		for i, o := range offsets {
			out[i] = Checkpoint{o, int64(i + 1)}
		}
		return out
	}
	out := make([]Checkpoint, 0, count)
	for i := 0; i < count; i++ {
		idx := (i+1)*n/count - 1
		if idx >= n {
			idx = n - 1
		}
		out = append(out, Checkpoint{offsets[idx], int64(idx + 1)})
	}
	return out
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, nil
		}
	}
	return total, nil
}
