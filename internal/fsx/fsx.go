// Package fsx implements the "remote/virtual filesystem layer" and
// "output-writer" collaborators of §6, scoped to the local POSIX
// filesystem: file existence/size, a preferred buffer size, temp file
// creation/removal, free-space checks, and an atomic-rename-with-
// cross-device-fallback output writer. Components reach input files through
// this interface; the bucket distributor's spill files and the files the
// chunk sorter and sort driver write are still opened with "os" directly.
package fsx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	shutil "github.com/termie/go-shutil"
)

// FS is the byte-range file service every component is handed instead of
// touching the OS directly.
type FS interface {
	FileExists(path string) bool
	FileSize(path string) (int64, error)
	PreferredBufferSize() int64
	CreateEmptyFile(path string) error
	RemoveFile(path string) error
	DiskFreeSpace(path string) (int64, error)
	TmpDir() string
	OpenByteRange(path string, offset, length int64) (io.ReadCloser, error)
}

// Local implements FS over the host's local filesystem, rooted at a
// per-run temp directory named with a fresh UUID so concurrent ksort runs
// never collide on bucket_<id>_task<i>.txt (§6 "Temporary files").
type Local struct {
	preferredBufferSize int64
	tmpDir              string
	mu                  sync.Mutex
	created             map[string]bool
}

// NewLocal returns a Local FS rooted under baseTmpDir (os.TempDir() if
// empty), with a fresh per-run subdirectory.
func NewLocal(baseTmpDir string, preferredBufferSize int64) (*Local, error) {
	if baseTmpDir == "" {
		baseTmpDir = os.TempDir()
	}
	if preferredBufferSize <= 0 {
		preferredBufferSize = 4 << 20
	}
	run := filepath.Join(baseTmpDir, "ksort-"+uuid.NewString())
	if err := os.MkdirAll(run, 0o755); err != nil {
		return nil, fmt.Errorf("fsx: create run tmp dir: %w", err)
	}
	return &Local{preferredBufferSize: preferredBufferSize, tmpDir: run, created: map[string]bool{}}, nil
}

func (l *Local) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Local) FileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (l *Local) PreferredBufferSize() int64 { return l.preferredBufferSize }

func (l *Local) CreateEmptyFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *Local) RemoveFile(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) DiskFreeSpace(path string) (int64, error) {
	return diskFreeSpace(path)
}

func (l *Local) TmpDir() string { return l.tmpDir }

// NewTempFile allocates a fresh path under the run's temp directory with
// the given name pattern (e.g. "bucket_3_task7.txt"), tracked for cleanup.
func (l *Local) NewTempFile(name string) string {
	p := filepath.Join(l.tmpDir, name)
	l.mu.Lock()
	l.created[p] = true
	l.mu.Unlock()
	return p
}

// CleanupAll removes every file this Local has handed out via NewTempFile
// plus the run's temp directory itself. Called on every terminal path —
// success, failure, or interrupt (§5 "Cancellation", P9).
func (l *Local) CleanupAll() {
	l.mu.Lock()
	paths := make([]string, 0, len(l.created))
	for p := range l.created {
		paths = append(paths, p)
	}
	l.mu.Unlock()
	for _, p := range paths {
		_ = os.Remove(p)
	}
	_ = os.RemoveAll(l.tmpDir)
}

func (l *Local) OpenByteRange(path string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

// AtomicPublish renames tmpPath to finalPath, falling back to a copy+
// remove (via github.com/termie/go-shutil) when the rename fails across a
// filesystem boundary (EXDEV) — e.g. the run's temp directory and the
// user's requested output directory are on different filesystems/mounts.
// Used by the sort driver to publish the final output and by the
// recursion step to promote a concatenated overweight-bucket file into the
// next round's source file.
func AtomicPublish(tmpPath, finalPath string) error {
	if err := os.Rename(tmpPath, finalPath); err == nil {
		return nil
	}
	if err := shutil.CopyFile(tmpPath, finalPath, false); err != nil {
		return fmt.Errorf("fsx: cross-device publish %s -> %s: %w", tmpPath, finalPath, err)
	}
	return os.Remove(tmpPath)
}

// CheckInterrupt reports whether ctx has been canceled, the uniform check
// every long-running loop in this module makes at its poll points
// (§5 "Cancellation").
func CheckInterrupt(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
