package mtindex_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/mtindex"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

func writeRoot(t *testing.T, n int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "root.csv")
	f, err := os.Create(p)
	assert.NilError(t, err)
	for i := 0; i < n; i++ {
		fmt.Fprintf(f, "k%05d;r%d\n", i, i)
	}
	assert.NilError(t, f.Close())
	return p
}

func writeSecondary(t *testing.T, n, perRoot int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "secondary.csv")
	f, err := os.Create(p)
	assert.NilError(t, err)
	for i := 0; i < n; i++ {
		for j := 0; j < perRoot; j++ {
			fmt.Fprintf(f, "k%05d;s%d;%d\n", i, j, i*perRoot+j)
		}
	}
	assert.NilError(t, f.Close())
	return p
}

func TestComputeIndexationSingleTableNoKey(t *testing.T) {
	p := writeRoot(t, 1000)
	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())
	root := mtindex.Table{Path: p}

	plan, err := mtindex.ComputeIndexation(context.Background(), rt, fs, root, nil, mtindex.Options{
		SlaveCount: 4,
		BufferSize: 1 << 12,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(plan.LastRootKey), 0)
	assert.Equal(t, len(plan.Tables), 1)
	assert.Equal(t, len(plan.Tables[0].BeginPos) > 0, true)

	size, err := fs.FileSize(p)
	assert.NilError(t, err)
	tc := plan.Tables[0]
	assert.Equal(t, tc.EndPos[len(tc.EndPos)-1], size)
	for i := 1; i < len(tc.BeginPos); i++ {
		assert.Equal(t, tc.BeginPos[i], tc.EndPos[i-1])
	}
}

func TestComputeIndexationRootWithSecondary(t *testing.T) {
	const n, perRoot = 200, 5
	rootPath := writeRoot(t, n)
	secPath := writeSecondary(t, n, perRoot)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())

	root := mtindex.Table{
		Path:      rootPath,
		Extractor: key.NewExtractor([]int{0}, ';'),
	}
	secondary := mtindex.Table{
		Path:      secPath,
		Extractor: key.NewExtractor([]int{0, 1}, ';'),
		Used:      true,
	}

	plan, err := mtindex.ComputeIndexation(context.Background(), rt, fs, root, []mtindex.Table{secondary}, mtindex.Options{
		SlaveCount:           4,
		MaxIndexationMemory:  1 << 20,
		MaxFileSizePerProcess: 1 << 16,
		BufferSize:           1 << 12,
		Rand:                 xrand.New(5),
	})
	assert.NilError(t, err)
	assert.Equal(t, len(plan.Tables), 2)

	nChunks := len(plan.LastRootKey)
	assert.Equal(t, nChunks > 0, true)
	for i := 1; i < nChunks; i++ {
		assert.Equal(t, plan.LastRootKey[i-1].Less(plan.LastRootKey[i]), true)
	}
	for _, tc := range plan.Tables {
		for i := 1; i < len(tc.EndPos); i++ {
			assert.Equal(t, tc.BeginPos[i], tc.EndPos[i-1])
		}
	}

	rootSize, err := fs.FileSize(rootPath)
	assert.NilError(t, err)
	secSize, err := fs.FileSize(secPath)
	assert.NilError(t, err)
	assert.Equal(t, plan.Tables[0].EndPos[nChunks-1], rootSize)
	assert.Equal(t, plan.Tables[1].EndPos[nChunks-1], secSize)
}

func TestComputeIndexationUnusedSecondaryIsAllZero(t *testing.T) {
	const n, perRoot = 100, 3
	rootPath := writeRoot(t, n)
	secPath := writeSecondary(t, n, perRoot)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(2, progress.Noop())

	root := mtindex.Table{
		Path:      rootPath,
		Extractor: key.NewExtractor([]int{0}, ';'),
	}
	secondary := mtindex.Table{
		Path:      secPath,
		Extractor: key.NewExtractor([]int{0, 1}, ';'),
		Used:      false,
	}

	plan, err := mtindex.ComputeIndexation(context.Background(), rt, fs, root, []mtindex.Table{secondary}, mtindex.Options{
		SlaveCount:          2,
		MaxIndexationMemory: 1 << 20,
		BufferSize:          1 << 12,
		Rand:                xrand.New(1),
	})
	assert.NilError(t, err)
	for _, v := range plan.Tables[1].BeginPos {
		assert.Equal(t, v, int64(0))
	}
	for _, v := range plan.Tables[1].EndPos {
		assert.Equal(t, v, int64(0))
	}
}
