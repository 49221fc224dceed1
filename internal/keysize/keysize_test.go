package keysize_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/keysize"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

func TestEvaluateEstimatesLineCount(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "in.csv")

	f, err := os.Create(p)
	assert.NilError(t, err)
	const n = 20000
	for i := 0; i < n; i++ {
		fmt.Fprintf(f, "k%05d;v%d\n", i, i)
	}
	assert.NilError(t, f.Close())

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())
	ex := key.NewExtractor([]int{0}, ';')
	est, err := keysize.Evaluate(context.Background(), rt, fs, p, ex, false, 1<<15, xrand.New(42))
	assert.NilError(t, err)

	assert.Equal(t, est.MeanKeyBytes > 0, true)
	// The extrapolated line count should be within an order of magnitude.
	assert.Equal(t, est.EstimatedTotalLines > n/10, true)
	assert.Equal(t, est.EstimatedTotalLines < n*10, true)
}
