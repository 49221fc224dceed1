package fsx_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/fsx"
)

func TestLocalCreateExistsRemove(t *testing.T) {
	l, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer l.CleanupAll()

	p := l.NewTempFile("chunk_0.txt")
	assert.Assert(t, !l.FileExists(p))

	assert.NilError(t, l.CreateEmptyFile(p))
	assert.Assert(t, l.FileExists(p))

	size, err := l.FileSize(p)
	assert.NilError(t, err)
	assert.Equal(t, size, int64(0))

	assert.NilError(t, l.RemoveFile(p))
	assert.Assert(t, !l.FileExists(p))
}

func TestLocalRemoveFileMissingIsNotAnError(t *testing.T) {
	l, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer l.CleanupAll()

	assert.NilError(t, l.RemoveFile(l.NewTempFile("never-created.txt")))
}

// TestCleanupAllLeavesNoDanglingTempFiles is P9: after a run's terminal
// cleanup, none of its temp files (or the run directory itself) remain.
func TestCleanupAllLeavesNoDanglingTempFiles(t *testing.T) {
	base := t.TempDir()
	l, err := fsx.NewLocal(base, 1<<16)
	assert.NilError(t, err)

	var paths []string
	for i := 0; i < 5; i++ {
		p := l.NewTempFile("bucket_" + string(rune('0'+i)) + "_task0.txt")
		assert.NilError(t, l.CreateEmptyFile(p))
		paths = append(paths, p)
	}

	runDir := l.TmpDir()
	l.CleanupAll()

	for _, p := range paths {
		assert.Assert(t, !l.FileExists(p), "temp file %s survived CleanupAll", p)
	}
	_, err = os.Stat(runDir)
	assert.Assert(t, os.IsNotExist(err), "run temp dir %s survived CleanupAll", runDir)
}

func TestOpenByteRange(t *testing.T) {
	l, err := fsx.NewLocal(t.TempDir(), 1<<16)
	assert.NilError(t, err)
	defer l.CleanupAll()

	p := filepath.Join(t.TempDir(), "data.txt")
	assert.NilError(t, os.WriteFile(p, []byte("0123456789"), 0o644))

	rc, err := l.OpenByteRange(p, 3, 4)
	assert.NilError(t, err)
	defer rc.Close()

	buf := make([]byte, 10)
	n, _ := rc.Read(buf)
	assert.Equal(t, string(buf[:n]), "3456")
}

func TestAtomicPublishRename(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp.txt")
	final := filepath.Join(dir, "final.txt")
	assert.NilError(t, os.WriteFile(tmp, []byte("hello"), 0o644))

	assert.NilError(t, fsx.AtomicPublish(tmp, final))

	got, err := os.ReadFile(final)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "hello")
	_, err = os.Stat(tmp)
	assert.Assert(t, os.IsNotExist(err))
}

func TestCheckInterrupt(t *testing.T) {
	assert.Assert(t, !fsx.CheckInterrupt(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Assert(t, fsx.CheckInterrupt(ctx))
}
