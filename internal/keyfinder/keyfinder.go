// Package keyfinder implements C5, the key-position finder: given an
// already-sorted file and a sorted list of target keys, return for each
// target the position just past the last record whose key is ≤ the target.
package keyfinder

import (
	"context"
	"fmt"
	"sort"

	"github.com/peak/ksort/internal/errs"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
)

// Find runs C5 over path against the sorted targetKeys, returning exactly
// len(targetKeys) positions (the SEMANTICS FINDER contract of §4.5).
func Find(ctx context.Context, rt task.Runtime, fs fsx.FS, path string, ex key.Extractor, header bool, targetKeys []key.Key, bufferSize int64) ([]key.Position, error) {
	if len(targetKeys) == 0 {
		return nil, nil
	}

	size, err := fs.FileSize(path)
	if err != nil {
		return nil, fmt.Errorf("keyfinder: stat %s: %w", path, err)
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
	if len(ranges) == 0 {
		out := make([]key.Position, len(targetKeys))
		for i, k := range targetKeys {
			out[i] = key.Position{Key: k, LineIndex: 0, ByteOffset: 0}
		}
		return out, nil
	}

	results := make([]rangeResult, len(ranges))
	jobs := make([]task.Job, len(ranges))
	for i, r := range ranges {
		i, r := i, r
		jobs[i] = func(ctx context.Context) error {
			res, err := findRange(fs, path, r.begin, r.end, ex, header && r.begin == 0, targetKeys)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		}
	}
	if err := rt.RunAll(ctx, jobs); err != nil {
		return nil, err
	}

	// Cross-worker consistency check (boundary probes), then discard them.
	var prev *rangeResult
	var cumulative int64
	set := make([]bool, len(targetKeys))
	out := make([]key.Position, len(targetKeys))

	for idx := range results {
		r := &results[idx]
		if r.hasData {
			if prev != nil && prev.hasData {
				if r.firstKey.Less(prev.lastKey) {
					return nil, errs.New(errs.UnsortedRecord, "keyfinder", "", &errs.UnsortedRecordInfo{
						LineIndex:   cumulative + 1,
						ThisKey:     r.firstKey.String(ex.Sep),
						PreviousKey: prev.lastKey.String(ex.Sep),
					})
				}
			}
			for _, e := range r.emitted {
				out[e.targetIndex] = key.Position{Key: targetKeys[e.targetIndex], LineIndex: e.lineIndex + cumulative, ByteOffset: e.byteOffset}
				set[e.targetIndex] = true
			}
			prev = r
		}
		cumulative += r.lineCount
	}
	totalLines := cumulative

	firstSet := -1
	for i, s := range set {
		if s {
			firstSet = i
			break
		}
	}

	// Backward fill: a missing target copies the next collected position's
	// (line_index, byte_offset) verbatim, substituting its own key; the
	// right boundary default is the end-of-file sentinel.
	next := key.Position{LineIndex: totalLines, ByteOffset: size}
	haveNext := true
	for i := len(targetKeys) - 1; i >= 0; i-- {
		if set[i] {
			next = out[i]
			haveNext = true
			continue
		}
		if haveNext {
			out[i] = key.Position{Key: targetKeys[i], LineIndex: next.LineIndex, ByteOffset: next.ByteOffset}
		} else {
			out[i] = key.Position{Key: targetKeys[i], LineIndex: totalLines, ByteOffset: size}
		}
	}

	// Leading targets smaller than the file's very first key resolve to
	// (0, 0), not to a neighboring answer (§4.5 "if no record has key ≤ t").
	if firstSet > 0 {
		for i := 0; i < firstSet; i++ {
			out[i] = key.Position{Key: targetKeys[i], LineIndex: 0, ByteOffset: 0}
		}
	} else if firstSet == -1 {
		for i := range out {
			out[i] = key.Position{Key: targetKeys[i], LineIndex: 0, ByteOffset: 0}
		}
	}

	return out, nil
}

type emission struct {
	targetIndex int
	lineIndex   int64
	byteOffset  int64
}

type rangeResult struct {
	emitted   []emission
	firstKey  key.Key
	lastKey   key.Key
	hasData   bool
	lineCount int64
}

// findRange scans one buffer-aligned range, tracking the current "answer"
// (prevKey, prevLine, prevBytePos) — the key and position of the latest
// record seen — and, on each strict key increase, emits every target
// strictly less than the new key using that trailing answer, per §4.5's
// worker algorithm.
func findRange(fs fsx.FS, path string, begin, end int64, ex key.Extractor, skipHeader bool, targetKeys []key.Key) (rangeResult, error) {
	rc, err := fs.OpenByteRange(path, begin, end-begin)
	if err != nil {
		return rangeResult{}, err
	}
	defer rc.Close()

	buf := make([]byte, end-begin)
	n, _ := readAll(rc, buf)
	buf = buf[:n]

	start := 0
	if begin != 0 {
		nl := reader.NextNewline(buf, 0)
		if nl == -1 {
			return rangeResult{}, nil
		}
		start = nl
	} else if skipHeader {
		if nl := reader.NextNewline(buf, 0); nl != -1 {
			start = nl
		}
	}
	if start >= len(buf) {
		return rangeResult{}, nil
	}

	var res rangeResult
	var prevKey key.Key
	var prevLine int64
	var prevByte int64
	haveFirst := false
	i := 0

	pos := start
	var line int64
	for pos < len(buf) {
		k, _, lineEnd, status := ex.ParseNext(buf, pos)
		if status == reader.LineTooLong {
			break
		}
		line++
		if !haveFirst {
			res.firstKey = k.Clone()
			prevKey = k.Clone()
			prevLine = line
			prevByte = begin + int64(lineEnd)
			haveFirst = true
			i = sort.Search(len(targetKeys), func(j int) bool { return !targetKeys[j].Less(k) })
			pos = lineEnd
			continue
		}
		if k.Less(prevKey) {
			return rangeResult{}, errs.New(errs.UnsortedRecord, "keyfinder", "", &errs.UnsortedRecordInfo{
				LineIndex:   line,
				ThisKey:     k.String(ex.Sep),
				PreviousKey: prevKey.String(ex.Sep),
			})
		}
		if !k.Equal(prevKey) {
			for i < len(targetKeys) && targetKeys[i].Less(k) {
				res.emitted = append(res.emitted, emission{targetIndex: i, lineIndex: prevLine, byteOffset: prevByte})
				i++
			}
		}
		prevKey = k.Clone()
		prevLine = line
		prevByte = begin + int64(lineEnd)
		pos = lineEnd
	}

	res.hasData = haveFirst
	res.lastKey = prevKey
	res.lineCount = line
	return res, nil
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
