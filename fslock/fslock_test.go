package fslock_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hahatianx/lumo/fslock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	return path
}

func TestConcurrentReaders(t *testing.T) {
	path := newTestPath(t)
	l := fslock.New(path)
	ctx := context.Background()

	g1, err := l.Read(ctx)
	require.NoError(t, err)
	g2, err := l.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, g1.Close())
	require.NoError(t, g2.Close())
}

func TestWriterExcludesReaders(t *testing.T) {
	path := newTestPath(t)
	l := fslock.New(path)
	ctx := context.Background()

	w, err := l.Write(ctx)
	require.NoError(t, err)

	var gotRead int32
	doneCh := make(chan struct{})
	go func() {
		g, err := l.Read(ctx)
		assert.NoError(t, err)
		atomic.StoreInt32(&gotRead, 1)
		require.NoError(t, g.Close())
		close(doneCh)
	}()

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&gotRead) != 0 {
		t.Error("reader proceeded while writer held the lock")
	}
	require.NoError(t, w.Close())
	<-doneCh
	if atomic.LoadInt32(&gotRead) != 1 {
		t.Error("reader never completed")
	}
}

func TestWriteLockContextCancel(t *testing.T) {
	path := newTestPath(t)
	l := fslock.New(path)
	ctx := context.Background()

	w, err := l.Write(ctx)
	require.NoError(t, err)

	ctx2, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err = l.Read(ctx2)
	require.Error(t, err)

	require.NoError(t, w.Close())

	// The lock must be in a sane state after a cancelled acquisition.
	g, err := l.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Close())
}

// TestCrossProcessExclusion approximates spec's "external process" contract
// using two independent *fslock.RWLock instances bound to the same path,
// which only coordinate through the OS-level advisory lock.
func TestCrossProcessExclusion(t *testing.T) {
	path := newTestPath(t)
	a := fslock.New(path)
	b := fslock.New(path)
	ctx := context.Background()

	wa, err := a.Write(ctx)
	require.NoError(t, err)

	var acquired int32
	doneCh := make(chan struct{})
	go func() {
		wb, err := b.Write(ctx)
		assert.NoError(t, err)
		atomic.StoreInt32(&acquired, 1)
		require.NoError(t, wb.Close())
		close(doneCh)
	}()

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&acquired) != 0 {
		t.Error("second lock instance acquired the write lock while the first held it")
	}
	require.NoError(t, wa.Close())
	<-doneCh
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	l := fslock.New(path)
	_, err := l.Read(context.Background())
	require.Error(t, err)
}

func TestRegistrySharesLock(t *testing.T) {
	path := newTestPath(t)
	reg := fslock.NewRegistry()
	if reg.For(path) != reg.For(path) {
		t.Error("registry returned distinct locks for the same path")
	}
}
