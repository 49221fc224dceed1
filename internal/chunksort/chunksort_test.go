package chunksort_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/bucket"
	"github.com/peak/ksort/internal/chunksort"
	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
)

func writeChunk(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	assert.NilError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestSortBucketOrdersByKey(t *testing.T) {
	dir := t.TempDir()
	chunk1 := writeChunk(t, dir, "c1.txt", "k003;c\nk001;a\n")
	chunk2 := writeChunk(t, dir, "c2.txt", "k002;b\n")

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	b := bucket.NewBucket(0, bucket.NoBound, bucket.NoBound)
	b.AddChunkFile(chunk1, 0)
	b.AddChunkFile(chunk2, 0)

	ex := key.NewExtractor([]int{0}, ';')
	out := filepath.Join(dir, "sorted.txt")
	err = chunksort.SortBucket(fs, b, ex, ';', ';', 1<<20, out)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "k001;a\nk002;b\nk003;c\n")

	_, err = os.Stat(chunk1)
	assert.Equal(t, os.IsNotExist(err), true)
}

func TestSortBucketSingletonSkipsSort(t *testing.T) {
	dir := t.TempDir()
	chunk := writeChunk(t, dir, "c1.txt", "k001;a\nk001;b\n")

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	k := key.New([]byte("k001"))
	b := bucket.NewBucket(0, bucket.InclusiveBound(k), bucket.InclusiveBound(k))
	b.AddChunkFile(chunk, 0)

	ex := key.NewExtractor([]int{0}, ';')
	out := filepath.Join(dir, "sorted.txt")
	err = chunksort.SortBucket(fs, b, ex, ';', ';', 1<<20, out)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "k001;a\nk001;b\n")
}

func TestSortAllWritesEveryBucket(t *testing.T) {
	dir := t.TempDir()
	chunk := writeChunk(t, dir, "c1.txt", "k002;b\nk001;a\n")

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	set := bucket.NewSet(nil)
	set.Buckets()[0].AddChunkFile(chunk, 0)

	rt := task.New(2, progress.Noop())
	ex := key.NewExtractor([]int{0}, ';')
	outDir := t.TempDir()

	err = chunksort.SortAll(context.Background(), rt, fs, set, ex, ';', ';', 1<<20, func(id int) string {
		return filepath.Join(outDir, "bucket0.txt")
	})
	assert.NilError(t, err)

	got, err := os.ReadFile(filepath.Join(outDir, "bucket0.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "k001;a\nk002;b\n")
}
