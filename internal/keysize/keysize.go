// Package keysize implements C3, the key-size evaluator: sample nBuffers
// disjoint buffers at randomized offsets, parse every line's key in each,
// and extrapolate a mean key byte size and a total line count estimate.
package keysize

import (
	"context"
	"fmt"
	"sort"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

// Estimate is the C3 result.
type Estimate struct {
	MeanKeyBytes       int64
	EstimatedTotalLines int64
}

// Evaluate samples nBuffers (at least max(3, workerCount)) buffers of
// bufferSize bytes at uniformly random, non-overlapping offsets and
// extrapolates MeanKeyBytes and EstimatedTotalLines for the whole file.
func Evaluate(ctx context.Context, rt task.Runtime, fs fsx.FS, path string, ex key.Extractor, header bool, bufferSize int64, rng xrand.Source) (Estimate, error) {
	size, err := fs.FileSize(path)
	if err != nil {
		return Estimate{}, fmt.Errorf("keysize: stat %s: %w", path, err)
	}
	if size == 0 {
		return Estimate{}, fmt.Errorf("keysize: %s is empty", path)
	}
	if bufferSize <= 0 {
		bufferSize = fs.PreferredBufferSize()
	}

	nBuffers := rt.WorkerCount()
	if nBuffers < 3 {
		nBuffers = 3
	}
	maxStart := size - int64(nBuffers)*bufferSize
	if maxStart < 0 {
		maxStart = 0
		// file too small for nBuffers disjoint buffers; shrink nBuffers to fit.
		if bufferSize > 0 {
			n := int(size / bufferSize)
			if n < 1 {
				n = 1
			}
			nBuffers = n
		}
	}

	offsets := make([]int64, nBuffers)
	for i := range offsets {
		offsets[i] = int64(rng.IthRandomDouble(int64(i)) * float64(maxStart+1))
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for i := range offsets {
		offsets[i] += int64(i) * bufferSize
	}

	type partial struct {
		sumKeyBytes      int64
		lines            int64
		effectiveBufferBytes int64
	}

	results := make([]partial, nBuffers)
	jobs := make([]task.Job, nBuffers)
	for i, off := range offsets {
		i, off := i, off
		jobs[i] = func(ctx context.Context) error {
			p, err := evaluateBuffer(fs, path, off, bufferSize, size, ex, header && off == 0)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		}
	}
	if err := rt.RunAll(ctx, jobs); err != nil {
		return Estimate{}, err
	}

	var sumKeyBytes, lines, effBytes int64
	for _, p := range results {
		sumKeyBytes += p.sumKeyBytes
		lines += p.lines
		effBytes += p.effectiveBufferBytes
	}

	meanKeyBytes := 1 + ceilDiv(sumKeyBytes, lines+1)
	estimatedTotalLines := int64(1) + ceilDiv(lines*size, effBytes+1)

	return Estimate{MeanKeyBytes: meanKeyBytes, EstimatedTotalLines: estimatedTotalLines}, nil
}

func evaluateBuffer(fs fsx.FS, path string, offset, bufferSize, fileSize int64, ex key.Extractor, skipHeader bool) (struct {
	sumKeyBytes           int64
	lines                 int64
	effectiveBufferBytes  int64
}, error) {
	type result = struct {
		sumKeyBytes           int64
		lines                 int64
		effectiveBufferBytes  int64
	}

	end := offset + bufferSize
	if end > fileSize {
		end = fileSize
	}
	rc, err := fs.OpenByteRange(path, offset, end-offset)
	if err != nil {
		return result{}, err
	}
	defer rc.Close()

	buf := make([]byte, end-offset)
	n, _ := readAll(rc, buf)
	buf = buf[:n]

	start := 0
	if offset != 0 {
		nl := reader.NextNewline(buf, 0)
		if nl == -1 {
			return result{}, nil
		}
		start = nl
	} else if skipHeader {
		nl := reader.NextNewline(buf, 0)
		if nl != -1 {
			start = nl
		}
	}

	var r result
	pos := start
	for pos < len(buf) {
		k, _, lineEnd, status := ex.ParseNext(buf, pos)
		if status == reader.LineTooLong {
			break
		}
		r.sumKeyBytes += k.ByteSize()
		r.lines++
		pos = lineEnd
	}
	r.effectiveBufferBytes = int64(len(buf) - start)
	return r, nil
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
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
