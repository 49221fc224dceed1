package keyfinder_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/keyfinder"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
)

func TestFindReturnsOnePositionPerTarget(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.csv")
	f, err := os.Create(p)
	assert.NilError(t, err)
	const n = 2000
	for i := 0; i < n; i++ {
		fmt.Fprintf(f, "k%06d;v%d\n", i, i)
	}
	assert.NilError(t, f.Close())

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())
	ex := key.NewExtractor([]int{0}, ';')

	targets := []key.Key{
		key.New([]byte("0")),         // before first
		key.New([]byte("k000000")),   // exact first
		key.New([]byte("k000250")),   // exact mid
		key.New([]byte("k000250a")),  // between k000250 and k000251
		key.New([]byte("zzzzzzz")),   // beyond last
	}

	positions, err := keyfinder.Find(context.Background(), rt, fs, p, ex, false, targets, 1<<14)
	assert.NilError(t, err)
	assert.Equal(t, len(positions), len(targets))

	assert.Equal(t, positions[0].LineIndex, int64(0))
	assert.Equal(t, positions[0].ByteOffset, int64(0))

	assert.Equal(t, positions[1].LineIndex, int64(1))
	assert.Equal(t, positions[2].LineIndex, int64(251))
	assert.Equal(t, positions[3].LineIndex, int64(251))
	assert.Equal(t, positions[4].LineIndex, int64(n))
}
