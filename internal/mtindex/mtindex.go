// Package mtindex implements C10, the multi-table indexer: it produces a
// ChunkPlan that partitions a root table (and every secondary table that
// shares its key) into the same number of synchronized chunks, so a
// downstream parallel reader can process matching ranges of every table
// together without ever re-deriving the correspondence.
package mtindex

import (
	"context"
	"fmt"

	"github.com/peak/ksort/internal/fileindex"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/keyfinder"
	"github.com/peak/ksort/internal/keysample"
	"github.com/peak/ksort/internal/keysize"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

// Table describes one file participating in the indexation: the root
// table (index 0) or a secondary table sharing the root's key as a prefix
// of its own (possibly wider) key.
type Table struct {
	Path      string
	Extractor key.Extractor
	Header    bool
	// Used marks a secondary table some downstream consumer will actually
	// read. Unused secondary tables get all-zero positions — "do not
	// open, do not read" — and are never scanned by C5.
	Used bool
}

// TableChunks is one table's per-chunk byte-range and first-record-index
// arrays, all with one entry per chunk of the plan.
type TableChunks struct {
	BeginPos         []int64
	EndPos           []int64
	FirstRecordIndex []int64
}

// ChunkPlan is C10's result. LastRootKey has no entries in the
// single-table, no-key mode; otherwise it has one entry per chunk, the root
// key whose records all lie before the chunk's start (the empty key for the
// first chunk), and is strictly increasing (invariant P5).
// Tables[t].EndPos[i] == Tables[t].BeginPos[i+1] for every used table t.
type ChunkPlan struct {
	LastRootKey []key.Key
	Tables      []TableChunks
}

// Options bounds the memory and parallelism the indexer is granted.
type Options struct {
	SlaveCount           int
	MaxIndexationMemory  int64
	MaxFileSizePerProcess int64
	BufferSize           int64
	Rand                 xrand.Source
}

// ComputeIndexation runs C10 over root and secondaries (§4.10).
func ComputeIndexation(ctx context.Context, rt task.Runtime, fs fsx.FS, root Table, secondaries []Table, opt Options) (ChunkPlan, error) {
	if len(root.Extractor.KeyCols) == 0 {
		return PlanSingleTable(ctx, rt, fs, root, opt)
	}
	return rootWithKey(ctx, rt, fs, root, secondaries, opt)
}

// PlanSingleTable implements §4.10's first mode — a single table with no
// key columns: run C2 alone and turn its checkpoints into a ChunkPlan with
// an empty LastRootKey. Cuts fall on arbitrary newline offsets rather than
// key boundaries (§3 DATA MODEL).
func PlanSingleTable(ctx context.Context, rt task.Runtime, fs fsx.FS, root Table, opt Options) (ChunkPlan, error) {
	bufferSize := opt.BufferSize
	if bufferSize <= 0 {
		bufferSize = fs.PreferredBufferSize()
	}
	checkpoints, err := fileindex.Index(ctx, rt, fs, root.Path, bufferSize, opt.SlaveCount)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("mtindex: index %s: %w", root.Path, err)
	}

	n := len(checkpoints) - 1
	if n < 1 {
		n = 1
	}
	tc := TableChunks{
		BeginPos:         make([]int64, n),
		EndPos:           make([]int64, n),
		FirstRecordIndex: make([]int64, n),
	}
	for i := 0; i < n; i++ {
		tc.BeginPos[i] = checkpoints[i].Offset
		tc.FirstRecordIndex[i] = checkpoints[i].Line
		if i+1 < len(checkpoints) {
			tc.EndPos[i] = checkpoints[i+1].Offset
		} else {
			size, err := fs.FileSize(root.Path)
			if err != nil {
				return ChunkPlan{}, err
			}
			tc.EndPos[i] = size
		}
	}
	return ChunkPlan{Tables: []TableChunks{tc}}, nil
}

// rootWithKey implements §4.10's second mode.
func rootWithKey(ctx context.Context, rt task.Runtime, fs fsx.FS, root Table, secondaries []Table, opt Options) (ChunkPlan, error) {
	size, err := fs.FileSize(root.Path)
	if err != nil {
		return ChunkPlan{}, fmt.Errorf("mtindex: stat %s: %w", root.Path, err)
	}

	bufferSize := opt.BufferSize
	if bufferSize <= 0 {
		bufferSize = fs.PreferredBufferSize()
	}

	est, err := keysize.Evaluate(ctx, rt, fs, root.Path, root.Extractor, root.Header, bufferSize, opt.Rand)
	if err != nil {
		return ChunkPlan{}, err
	}

	mainTableCount := int64(len(secondaries) + 1)
	sampleSizeMemory := est.MeanKeyBytes + 8 + mainTableCount*8*2
	if sampleSizeMemory < 1 {
		sampleSizeMemory = 1
	}
	maxKeys := opt.MaxIndexationMemory / sampleSizeMemory

	fileSizeAllTables := size
	for _, s := range secondaries {
		if !s.Used {
			continue
		}
		sz, err := fs.FileSize(s.Path)
		if err != nil {
			return ChunkPlan{}, err
		}
		fileSizeAllTables += sz
	}
	maxFileSizePerProcess := opt.MaxFileSizePerProcess
	if maxFileSizePerProcess < 1 {
		maxFileSizePerProcess = size
	}
	capLimit := 10 * ceilDiv(fileSizeAllTables, maxFileSizePerProcess/8+1)
	if maxKeys > capLimit {
		maxKeys = capLimit
	}
	if maxKeys < 1 {
		maxKeys = 1
	}

	perWorkerMemory := opt.MaxIndexationMemory / int64(maxInt(opt.SlaveCount, 1))
	rootPositions, err := keysample.Sample(ctx, rt, fs, root.Path, root.Extractor, root.Header, maxKeys, est.MeanKeyBytes, est.EstimatedTotalLines, perWorkerMemory, opt.Rand)
	if err != nil {
		return ChunkPlan{}, err
	}
	hasSentinel := false
	if len(rootPositions) == 0 || rootPositions[len(rootPositions)-1].ByteOffset != size {
		rootPositions = append(rootPositions, key.Position{LineIndex: est.EstimatedTotalLines, ByteOffset: size})
		hasSentinel = true
	}

	rootKeyWidth := len(root.Extractor.KeyCols)
	targets := make([]key.Key, len(rootPositions))
	for i, p := range rootPositions {
		targets[i] = p.Key
	}
	// The end-of-file sentinel carries no key, so it is not a finder target;
	// each used secondary table gets its own end-of-file position for it.
	if hasSentinel {
		targets = targets[:len(targets)-1]
	}

	secondaryPositions := make([][]key.Position, len(secondaries))
	for i, s := range secondaries {
		if !s.Used {
			continue
		}
		secEx := projectExtractor(s.Extractor, rootKeyWidth)
		pos, err := keyfinder.Find(ctx, rt, fs, s.Path, secEx, s.Header, targets, bufferSize)
		if err != nil {
			return ChunkPlan{}, fmt.Errorf("mtindex: find on %s: %w", s.Path, err)
		}
		if hasSentinel {
			secSize, err := fs.FileSize(s.Path)
			if err != nil {
				return ChunkPlan{}, err
			}
			pos = append(pos, key.Position{ByteOffset: secSize})
		}
		secondaryPositions[i] = pos
	}

	fileSizePerProcess := size / int64(maxInt(opt.SlaveCount, 1))
	if fileSizePerProcess < 1 {
		fileSizePerProcess = size
	}
	minPreferred := fs.PreferredBufferSize()
	cutIdx := staircaseMerge(rootPositions, size, opt.SlaveCount, fileSizePerProcess, minPreferred)

	nChunks := len(cutIdx)
	lastRootKey := make([]key.Key, nChunks)
	tables := make([]TableChunks, len(secondaries)+1)
	tables[0] = TableChunks{BeginPos: make([]int64, nChunks), EndPos: make([]int64, nChunks), FirstRecordIndex: make([]int64, nChunks)}
	for i := range secondaries {
		tables[i+1] = TableChunks{BeginPos: make([]int64, nChunks), EndPos: make([]int64, nChunks), FirstRecordIndex: make([]int64, nChunks)}
	}

	var prevRootOff, prevRootLine int64
	prevSecOff := make([]int64, len(secondaries))
	prevSecLine := make([]int64, len(secondaries))

	var prevRootKey key.Key
	for i, idx := range cutIdx {
		lastRootKey[i] = prevRootKey
		prevRootKey = rootPositions[idx].Key

		tables[0].BeginPos[i] = prevRootOff
		tables[0].EndPos[i] = rootPositions[idx].ByteOffset
		tables[0].FirstRecordIndex[i] = prevRootLine
		prevRootOff = rootPositions[idx].ByteOffset
		prevRootLine = rootPositions[idx].LineIndex

		for t, s := range secondaries {
			if !s.Used {
				continue // all-zero positions, left at their zero value
			}
			p := secondaryPositions[t][idx]
			tables[t+1].BeginPos[i] = prevSecOff[t]
			tables[t+1].EndPos[i] = p.ByteOffset
			tables[t+1].FirstRecordIndex[i] = prevSecLine[t]
			prevSecOff[t] = p.ByteOffset
			prevSecLine[t] = p.LineIndex
		}
	}

	return ChunkPlan{LastRootKey: lastRootKey, Tables: tables}, nil
}

// projectExtractor builds the extractor used to scan a secondary table for
// C5, restricted to its first rootWidth key columns — "root_keys projected
// to the root's key width" (§4.10).
func projectExtractor(ex key.Extractor, rootWidth int) key.Extractor {
	w := rootWidth
	if w > len(ex.KeyCols) {
		w = len(ex.KeyCols)
	}
	return key.NewExtractor(ex.KeyCols[:w], ex.Sep)
}

// staircaseMerge merges adjacent micro-chunks (the gaps between consecutive
// root sample positions) into the final cut-point index list, respecting
// the head ramp-up / middle plateau / tail shrink targets (§4.10, invariant
// STAIR). Returns indices into positions identifying the END of each final
// chunk; positions[len(positions)-1] (the end-of-file sentinel) is always
// the last cut.
func staircaseMerge(positions []key.Position, fileSize int64, slaveCount int, fileSizePerProcess, minPreferredBufferSize int64) []int {
	if len(positions) == 0 {
		return nil
	}
	if slaveCount < 1 {
		slaveCount = 1
	}
	minFileSizePerProcess := fileSizePerProcess / 8
	if minFileSizePerProcess < minPreferredBufferSize {
		minFileSizePerProcess = minPreferredBufferSize
	}
	tailZone := int64(slaveCount+1) * fileSizePerProcess / 2

	var cuts []int
	var chunkStart int64
	chunkIndex := 0
	for i, p := range positions {
		remaining := fileSize - p.ByteOffset
		var target int64
		switch {
		case int64(chunkIndex) < int64(slaveCount):
			target = fileSizePerProcess * int64(chunkIndex) / int64(slaveCount)
			if target < minPreferredBufferSize {
				target = minPreferredBufferSize
			}
		case remaining <= tailZone && tailZone > 0:
			frac := float64(remaining) / float64(tailZone)
			target = minFileSizePerProcess + int64(frac*float64(fileSizePerProcess-minFileSizePerProcess))
		default:
			target = fileSizePerProcess
		}

		isLast := i == len(positions)-1
		if p.ByteOffset-chunkStart >= target || isLast {
			cuts = append(cuts, i)
			chunkStart = p.ByteOffset
			chunkIndex++
		}
	}
	if len(cuts) == 0 || cuts[len(cuts)-1] != len(positions)-1 {
		cuts = append(cuts, len(positions)-1)
	}
	return cuts
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
