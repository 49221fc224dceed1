// Package chunksort implements C8, the chunk sorter: each bucket's chunk
// files are concatenated into memory, sorted stably by (key, line_start),
// optionally re-tokenized to a different output separator, and written to
// the bucket's sorted output file.
package chunksort

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/lanrat/extsort"

	"github.com/peak/ksort/internal/bucket"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
	"github.com/peak/ksort/internal/task"
)

// lineRef is one line's parsed key and [start,end) byte range within a
// bucket's slurped chunk-file buffer.
type lineRef struct {
	k          key.Key
	start, end int
}

// MemoryOverhead returns 3·lineCount·(sizeof(KeyLinePair) + sizeof(Key) +
// keyBytes), the in-memory bookkeeping cost C9's ComputeChunkSize budgets
// against (§4.8 "overhead").
func MemoryOverhead(lineCount, keyBytes int64) int64 {
	const keyLinePairBytes = 24
	const keyHeaderBytes = 24
	return 3 * lineCount * (keyLinePairBytes + keyHeaderBytes + keyBytes)
}

// SortAll runs C8 over every bucket in set, one worker task per bucket,
// writing each bucket's sorted records to outputPath(bucket.ID). Bucket
// contents never include the header line; writing it is left to the
// caller's concatenation step.
func SortAll(ctx context.Context, rt task.Runtime, fs fsx.FS, set *bucket.Set, ex key.Extractor, inSep, outSep byte, perWorkerMemory int64, outputPath func(bucketID int) string) error {
	buckets := set.Buckets()
	jobs := make([]task.Job, len(buckets))
	for i, b := range buckets {
		b := b
		jobs[i] = func(ctx context.Context) error {
			out := outputPath(b.ID)
			if err := SortBucket(fs, b, ex, inSep, outSep, perWorkerMemory, out); err != nil {
				return fmt.Errorf("chunksort: bucket %d: %w", b.ID, err)
			}
			b.SetSortedOutput(out)
			return nil
		}
	}
	return rt.RunAll(ctx, jobs)
}

// SortBucket implements one bucket's worth of C8: concatenate its chunk
// files, sort, write, delete the inputs on success.
func SortBucket(fs fsx.FS, b *bucket.Bucket, ex key.Extractor, inSep, outSep byte, perWorkerMemory int64, outPath string) error {
	files := b.ChunkFiles()
	if len(files) == 0 {
		return fs.CreateEmptyFile(outPath)
	}

	buf, err := slurp(fs, files)
	if err != nil {
		return err
	}

	if b.Singleton() {
		if err := writeBuffer(outPath, buf, ex, inSep, outSep); err != nil {
			return err
		}
		for _, p := range files {
			_ = fs.RemoveFile(p)
		}
		return nil
	}

	var lines []lineRef
	pos := 0
	for pos < len(buf) {
		k, lineStart, lineEnd, status := ex.ParseNext(buf, pos)
		if status == reader.LineTooLong {
			break
		}
		lines = append(lines, lineRef{k, lineStart, lineEnd})
		pos = lineEnd
	}

	estimated := MemoryOverhead(int64(len(lines)), estimateKeyBytes(lines))
	if perWorkerMemory > 0 && estimated > perWorkerMemory {
		if err := sortWithExtsort(buf, lines, ex, inSep, outSep, outPath); err != nil {
			return err
		}
		for _, p := range files {
			_ = fs.RemoveFile(p)
		}
		return nil
	}

	sort.SliceStable(lines, func(i, j int) bool {
		c := lines[i].k.Compare(lines[j].k)
		if c != 0 {
			return c < 0
		}
		return lines[i].start < lines[j].start
	})

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, l := range lines {
		if err := writeLine(f, buf, l.start, l.end, inSep, outSep); err != nil {
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	for _, p := range files {
		_ = fs.RemoveFile(p)
	}
	return nil
}

func estimateKeyBytes(lines []lineRef) int64 {
	var n int64
	for _, l := range lines {
		n += l.k.ByteSize()
	}
	if len(lines) == 0 {
		return 0
	}
	return n / int64(len(lines))
}

func writeBuffer(outPath string, buf []byte, ex key.Extractor, inSep, outSep byte) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if inSep == outSep {
		if _, err := f.Write(buf); err != nil {
			return err
		}
		return f.Close()
	}
	for pos := 0; pos < len(buf); {
		out, end, status := reader.Retokenize(buf, pos, inSep, outSep)
		if status == reader.LineTooLong || end <= pos {
			break
		}
		if _, err := f.Write(out); err != nil {
			return err
		}
		pos = end
	}
	return f.Close()
}

func writeLine(f *os.File, buf []byte, start, end int, inSep, outSep byte) error {
	if inSep == outSep {
		_, err := f.Write(buf[start:end])
		return err
	}
	out, _, _ := reader.Retokenize(buf, start, inSep, outSep)
	_, err := f.Write(out)
	return err
}

// sortWithExtsort is the §3.1 defensive fallback: when the in-memory
// overhead estimate for this bucket undershot at sort time, records are
// handed to extsort.Strings instead of being held in a (key,line) array,
// so the sorter's resident memory stays bounded by extsort's own chunking
// rather than by this bucket's full line count.
func sortWithExtsort(buf []byte, lines []lineRef, ex key.Extractor, inSep, outSep byte, outPath string) error {
	lessFunc := func(a, b extsort.SortType) bool {
		la, lb := a.(*sortLine), b.(*sortLine)
		if c := bytes.Compare(la.keyEnc, lb.keyEnc); c != 0 {
			return c < 0
		}
		return la.seq < lb.seq
	}
	fromBytes := func(raw []byte) extsort.SortType {
		return decodeSortLine(raw)
	}

	input := make(chan extsort.SortType)
	sorter, outChan, errChan := extsort.New(input, fromBytes, lessFunc, nil)

	ctx := context.Background()
	go sorter.Sort(ctx)
	go func() {
		defer close(input)
		for i, l := range lines {
			input <- &sortLine{
				keyEnc: encodeKey(l.k),
				seq:    int64(i),
				line:   append([]byte(nil), buf[l.start:l.end]...),
			}
		}
	}()

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for rec := range outChan {
		sl := rec.(*sortLine)
		if inSep == outSep {
			if _, err := f.Write(sl.line); err != nil {
				return err
			}
			continue
		}
		out, _, _ := reader.Retokenize(sl.line, 0, inSep, outSep)
		if _, err := f.Write(out); err != nil {
			return err
		}
	}
	if err := <-errChan; err != nil {
		return err
	}
	return f.Close()
}

// sortLine is the extsort.SortType carrying one bucket record through the
// disk-backed fallback sorter. keyEnc is the key's components joined on a
// NUL byte with a trailing NUL per component — a byte-comparable encoding
// equivalent to Key.Compare as long as no component contains a literal NUL
// (true of any delimited text input) — so a plain bytes.Compare survives
// the round trip to disk and back during extsort's merge phase, where only
// ToBytes/FromBytes-reconstructed values are available to the comparator.
type sortLine struct {
	keyEnc []byte
	seq    int64
	line   []byte
}

func encodeKey(k key.Key) []byte {
	var buf bytes.Buffer
	for i := 0; i < k.Len(); i++ {
		buf.Write(k.Part(i))
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func (s *sortLine) ToBytes() []byte {
	var buf bytes.Buffer
	scratch := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(scratch, uint64(len(s.keyEnc)))
	buf.Write(scratch[:n])
	buf.Write(s.keyEnc)
	n = binary.PutUvarint(scratch, uint64(s.seq))
	buf.Write(scratch[:n])
	buf.Write(s.line)
	return buf.Bytes()
}

func decodeSortLine(raw []byte) *sortLine {
	r := bytes.NewReader(raw)
	keyLen, _ := binary.ReadUvarint(r)
	keyEnc := make([]byte, keyLen)
	_, _ = r.Read(keyEnc)
	seq, _ := binary.ReadUvarint(r)
	line := make([]byte, r.Len())
	_, _ = r.Read(line)
	return &sortLine{keyEnc: keyEnc, seq: int64(seq), line: line}
}

func slurp(fs fsx.FS, files []string) ([]byte, error) {
	var total int64
	sizes := make([]int64, len(files))
	for i, p := range files {
		n, err := fs.FileSize(p)
		if err != nil {
			return nil, err
		}
		sizes[i] = n
		total += n
	}
	buf := make([]byte, total)
	var off int64
	for i, p := range files {
		rc, err := fs.OpenByteRange(p, 0, sizes[i])
		if err != nil {
			return nil, err
		}
		n, _ := readAll(rc, buf[off:off+sizes[i]])
		rc.Close()
		off += int64(n)
	}
	return buf[:off], nil
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
