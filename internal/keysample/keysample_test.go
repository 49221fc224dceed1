package keysample_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/keysample"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

func writeSorted(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "in.csv")
	f, err := os.Create(p)
	assert.NilError(t, err)
	for i := 0; i < n; i++ {
		fmt.Fprintf(f, "k%06d;v%d\n", i, i)
	}
	assert.NilError(t, f.Close())
	return p
}

func TestSampleReturnsAscendingKeys(t *testing.T) {
	const n = 5000
	p := writeSorted(t, n)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())
	ex := key.NewExtractor([]int{0}, ';')

	samples, err := keysample.Sample(context.Background(), rt, fs, p, ex, false, 200, 8, n, 1<<20, xrand.New(7))
	assert.NilError(t, err)
	assert.Equal(t, len(samples) > 0, true)

	for i := 1; i < len(samples); i++ {
		assert.Equal(t, samples[i-1].Key.Less(samples[i].Key) || samples[i-1].Key.Equal(samples[i].Key), true)
	}
}

func TestSampleRespectsMemoryPressure(t *testing.T) {
	const n = 5000
	p := writeSorted(t, n)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(2, progress.Noop())
	ex := key.NewExtractor([]int{0}, ';')

	// Sample target far larger than a tiny memory budget should still
	// return without error, with a final sample roughly scaled down.
	samples, err := keysample.Sample(context.Background(), rt, fs, p, ex, false, n, 8, n, 64, xrand.New(3))
	assert.NilError(t, err)
	assert.Equal(t, len(samples) < n, true)
}
