package sortdriver_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/progress"
	"github.com/peak/ksort/internal/sortdriver"
	"github.com/peak/ksort/internal/task"
	"github.com/peak/ksort/internal/xrand"
)

func writeShuffled(t *testing.T, n int, withHeader bool) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "in.csv")
	f, err := os.Create(p)
	assert.NilError(t, err)

	if withHeader {
		fmt.Fprintln(f, "key;value")
	}
	order := rand.New(rand.NewSource(42)).Perm(n)
	for _, i := range order {
		fmt.Fprintf(f, "k%06d;v%d\n", i, i)
	}
	assert.NilError(t, f.Close())
	return p
}

func TestSortSmallFileInMemoryPath(t *testing.T) {
	in := writeShuffled(t, 500, false)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(4, progress.Noop())
	out := filepath.Join(t.TempDir(), "out.csv")

	opt := sortdriver.Options{
		Extractor: key.NewExtractor([]int{0}, ';'),
		InSep:     ';',
		OutSep:    ';',
		MaxMemory: 64 << 20,
		Rand:      xrand.New(7),
	}
	err = sortdriver.Sort(context.Background(), rt, fs, in, out, opt)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)

	lines := splitLines(string(got))
	assert.Equal(t, len(lines), 500)
	for i := 0; i < 500; i++ {
		assert.Equal(t, lines[i], fmt.Sprintf("k%06d;v%d", i, i))
	}
}

func TestSortHeaderPassesThroughUnsorted(t *testing.T) {
	in := writeShuffled(t, 200, true)

	fs, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer fs.CleanupAll()

	rt := task.New(2, progress.Noop())
	out := filepath.Join(t.TempDir(), "out.csv")

	opt := sortdriver.Options{
		Extractor: key.NewExtractor([]int{0}, ';'),
		Header:    true,
		InSep:     ';',
		OutSep:    ';',
		MaxMemory: 32 << 20,
		Rand:      xrand.New(3),
	}
	err = sortdriver.Sort(context.Background(), rt, fs, in, out, opt)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	lines := splitLines(string(got))
	assert.Equal(t, lines[0], "key;value")
	assert.Equal(t, len(lines), 201)
	for i := 0; i < 200; i++ {
		assert.Equal(t, lines[i+1], fmt.Sprintf("k%06d;v%d", i, i))
	}
}

func TestComputeChunkSizeRespectsFileSize(t *testing.T) {
	budget := sortdriver.ComputeChunkSize(1<<20, 1000, 16, 4<<20)
	assert.Equal(t, budget.MaxChunkSize <= 1<<20, true)
	assert.Equal(t, budget.MinChunkSize <= budget.MaxChunkSize, true)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
