// Package sortdriver implements C9, the sort driver: it orchestrates
// C3 → C4/C6 → C7 → C8 → concatenation for a single file, recursing on any
// bucket that still exceeds the in-memory chunk-size limit.
package sortdriver

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/peak/ksort/internal/bucket"
	"github.com/peak/ksort/internal/chunksort"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/keysample"
	"github.com/peak/ksort/internal/keysize"
	"github.com/peak/ksort/internal/splitter"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

const inMemorySortCeiling = 100 << 20 // §4.9 step 4: file_size ≤ 100 MiB

// Options configures one Sort invocation.
type Options struct {
	Extractor      key.Extractor
	Header         bool
	InSep, OutSep  byte
	MaxMemory      int64 // total memory budget; split by WorkerCount for the per-worker grant
	Rand           xrand.Source
}

// ChunkBudget is C9's ComputeChunkSize result (§4.9 step 3).
type ChunkBudget struct {
	MaxChunkSize int64
	MinChunkSize int64
}

// ComputeChunkSize computes the max/min chunk-size budget a bucket must
// respect before C8 may sort it directly.
func ComputeChunkSize(fileSize, lineCount, meanKeyBytes, perWorkerMemory int64) ChunkBudget {
	overhead := chunksort.MemoryOverhead(lineCount, meanKeyBytes)
	maxChunk := perWorkerMemory - overhead
	if maxChunk > fileSize {
		maxChunk = fileSize
	}
	if maxChunk < 1 {
		maxChunk = 1
	}

	minChunk := int64(math.Sqrt(float64(fileSize) * float64(2<<20)))
	if minChunk < 2<<20 {
		minChunk = 2 << 20
	}
	minChunk /= 2
	if minChunk > maxChunk {
		minChunk = maxChunk
	}
	return ChunkBudget{MaxChunkSize: maxChunk, MinChunkSize: minChunk}
}

// Sort runs C9 end to end: estimate, sample, split, distribute, sort,
// concatenate. The output path is reserved (created empty) before any work
// starts and removed on any failure path (§4.9 step 6).
func Sort(ctx context.Context, rt task.Runtime, fs fsx.FS, inputPath, outputPath string, opt Options) (err error) {
	if err := fs.CreateEmptyFile(outputPath); err != nil {
		return fmt.Errorf("sortdriver: reserve output %s: %w", outputPath, err)
	}
	defer func() {
		if err != nil {
			_ = fs.RemoveFile(outputPath)
		}
	}()

	size, err := fs.FileSize(inputPath)
	if err != nil {
		return fmt.Errorf("sortdriver: stat %s: %w", inputPath, err)
	}

	workers := rt.WorkerCount()
	if workers < 1 {
		workers = 1
	}
	perWorkerMemory := opt.MaxMemory / int64(workers)
	if perWorkerMemory < 1<<20 {
		perWorkerMemory = 1 << 20
	}

	est, err := keysize.Evaluate(ctx, rt, fs, inputPath, opt.Extractor, opt.Header, fs.PreferredBufferSize(), opt.Rand)
	if err != nil {
		return err
	}

	budget := ComputeChunkSize(size, est.EstimatedTotalLines, est.MeanKeyBytes, perWorkerMemory)

	headerLine, err := readHeaderLine(fs, inputPath, opt.Header)
	if err != nil {
		return err
	}

	overhead := chunksort.MemoryOverhead(est.EstimatedTotalLines, est.MeanKeyBytes)
	if size <= inMemorySortCeiling && overhead <= perWorkerMemory {
		return sortInMemory(ctx, rt, fs, inputPath, outputPath, opt, headerLine)
	}

	return sortRecursive(ctx, rt, fs, inputPath, outputPath, opt, est, budget, headerLine)
}

// sortInMemory implements §4.9 step 4: a single bucket covering the whole
// file, distributed and sorted directly, no recursion.
func sortInMemory(ctx context.Context, rt task.Runtime, fs fsx.FS, inputPath, outputPath string, opt Options, headerLine []byte) error {
	set := bucket.NewSet(nil)
	if err := bucket.Distribute(ctx, rt, fs, inputPath, opt.Extractor, set, opt.Header, fs.PreferredBufferSize(), opt.MaxMemory); err != nil {
		return err
	}
	return sortAndConcatenate(ctx, rt, fs, set, outputPath, opt, headerLine)
}

// sortRecursive implements §4.9 steps 5-6: repeatedly sample, split,
// distribute, and look for an overweight bucket; when one is found its
// chunk files are concatenated into a fresh source file and the round
// repeats restricted to that bucket's key range.
func sortRecursive(ctx context.Context, rt task.Runtime, fs fsx.FS, inputPath, outputPath string, opt Options, est keysize.Estimate, budget ChunkBudget, headerLine []byte) error {
	workers := rt.WorkerCount()
	if workers < 1 {
		workers = 1
	}
	perWorkerMemory := opt.MaxMemory / int64(workers)

	sourcePath := inputPath
	sourceSize, err := fs.FileSize(inputPath)
	if err != nil {
		return err
	}
	header := opt.Header
	totalLines := est.EstimatedTotalLines
	meanKeyBytes := est.MeanKeyBytes
	round := 0

	for {
		round++
		if round > 1 {
			// Re-run C3 on the overweight bucket's own content: its key
			// size and line density can differ from the whole file's.
			roundEst, err := keysize.Evaluate(ctx, rt, fs, sourcePath, opt.Extractor, header, fs.PreferredBufferSize(), opt.Rand)
			if err != nil {
				return err
			}
			totalLines = roundEst.EstimatedTotalLines
			meanKeyBytes = roundEst.MeanKeyBytes
		}

		sampleTargetBytes := int64(0.8 * float64(budget.MaxChunkSize))
		sampleRecords := sampleTargetBytes / meanKeyBytes
		if sampleRecords < 1 {
			sampleRecords = 1
		}

		minSplits := int(sourceSize/budget.MaxChunkSize) - 1
		if minSplits < 0 {
			minSplits = 0
		}
		maxSplits := int(sourceSize/budget.MinChunkSize) - 1
		if maxSplits < minSplits+1 {
			maxSplits = minSplits + 1
		}

		samples, err := keysample.Sample(ctx, rt, fs, sourcePath, opt.Extractor, header, sampleRecords, meanKeyBytes, totalLines, perWorkerMemory, opt.Rand)
		if err != nil {
			return err
		}
		sampleKeys := make([]key.Key, len(samples))
		for i, s := range samples {
			sampleKeys[i] = s.Key
		}

		splits := splitter.Choose(sampleKeys, minSplits, maxSplits, workers, opt.Rand)
		set := bucket.NewSet(splits)

		if err := bucket.Distribute(ctx, rt, fs, sourcePath, opt.Extractor, set, header, fs.PreferredBufferSize(), perWorkerMemory); err != nil {
			return err
		}

		overweight := findOverweight(set, budget.MaxChunkSize)
		if overweight == nil {
			return sortAndConcatenate(ctx, rt, fs, set, outputPath, opt, headerLine)
		}

		// Messages for rounds > 1 are silenced (§4.9 step 5); only the
		// round counter itself, used for a deterministic temp-file name,
		// survives into the next iteration.
		nextSource, err := concatenateChunks(fs, overweight.ChunkFiles(), round)
		if err != nil {
			return err
		}
		sourcePath = nextSource
		header = false
		sourceSize = overweight.SizeBytes()
	}
}

func findOverweight(set *bucket.Set, maxChunkSize int64) *bucket.Bucket {
	for _, b := range set.Buckets() {
		if b.SizeBytes() > maxChunkSize {
			return b
		}
	}
	return nil
}

// sortAndConcatenate runs C8 over set and concatenates the sorted bucket
// files, in bucket order, into outputPath, prefixed by headerLine if
// non-empty. By the time this runs, chunksort.SortAll has already returned
// (RunAll is a barrier), so every bucket's sorted file is complete and
// writing them out in slice order already reproduces submission order —
// there is no concurrent producer here for fsx.OrderedWriter to arbitrate.
func sortAndConcatenate(ctx context.Context, rt task.Runtime, fs fsx.FS, set *bucket.Set, outputPath string, opt Options, headerLine []byte) error {
	local, _ := fs.(*fsx.Local)

	outputPathFor := func(id int) string {
		if local != nil {
			return local.NewTempFile(fmt.Sprintf("sorted_bucket_%d.txt", id))
		}
		return fmt.Sprintf("%s.bucket%d", outputPath, id)
	}
	if err := chunksort.SortAll(ctx, rt, fs, set, opt.Extractor, opt.InSep, opt.OutSep, opt.MaxMemory/int64(maxInt(rt.WorkerCount(), 1)), outputPathFor); err != nil {
		return err
	}

	tmpOut := outputPath
	if local != nil {
		tmpOut = local.NewTempFile("final_output.txt")
	}

	f, err := os.Create(tmpOut)
	if err != nil {
		return err
	}

	if len(headerLine) > 0 {
		if _, err := f.Write(headerLine); err != nil {
			f.Close()
			return err
		}
	}
	for _, b := range set.Buckets() {
		p := b.SortedOutput()
		if p == "" {
			continue
		}
		if err := copyFileInto(fs, f, p); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	if tmpOut == outputPath {
		return nil
	}
	return fsx.AtomicPublish(tmpOut, outputPath)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// concatenateChunks writes every file in files, in order, into a fresh
// temp file and returns its path — the §4.9 step 5d recursion source.
func concatenateChunks(fs fsx.FS, files []string, round int) (string, error) {
	local, ok := fs.(*fsx.Local)
	var path string
	if ok {
		path = local.NewTempFile(fmt.Sprintf("recurse_round%d.txt", round))
	} else {
		f, err := os.CreateTemp("", "ksort-recurse-*.txt")
		if err != nil {
			return "", err
		}
		path = f.Name()
		f.Close()
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, p := range files {
		if err := copyFileInto(fs, f, p); err != nil {
			return "", err
		}
	}
	return path, f.Close()
}

func copyFileInto(fs fsx.FS, dst *os.File, path string) error {
	size, err := fs.FileSize(path)
	if err != nil {
		return err
	}
	rc, err := fs.OpenByteRange(path, 0, size)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(dst, rc)
	return err
}

// readHeaderLine returns the verbatim first line (including its trailing
// newline) of path when header is set, for §4 DESIGN NOTES supplement 3's
// pass-through rule.
func readHeaderLine(fs fsx.FS, path string, header bool) ([]byte, error) {
	if !header {
		return nil, nil
	}
	size, err := fs.FileSize(path)
	if err != nil {
		return nil, err
	}
	peek := fs.PreferredBufferSize()
	if peek > size {
		peek = size
	}
	rc, err := fs.OpenByteRange(path, 0, peek)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, peek)
	n, _ := io.ReadFull(rc, buf)
	buf = buf[:n]
	for i, c := range buf {
		if c == '\n' {
			return buf[:i+1], nil
		}
	}
	return buf, nil
}
