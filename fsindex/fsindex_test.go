package fsindex_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/fsindex"
	"github.com/hahatianx/lumo/fswatch"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestUpsertThenCandidateLookups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello world")

	idx := fsindex.New()
	require.NoError(t, idx.OnFileEvent(path, fswatch.Create))

	var found bool
	require.True(t, idx.WithEntry(path, func(v fsindex.View) {
		found = true
		require.True(t, v.IsActive)
		require.EqualValues(t, len("hello world"), v.Size)
	}))
	require.True(t, found)

	fi, err := os.Stat(path)
	require.NoError(t, err)

	bySize := idx.CandidatesBySize(fi.Size())
	require.Contains(t, bySize, path)

	bySizeMtime := idx.CandidatesBySizeMtime(fi.Size(), fi.ModTime())
	require.Subset(t, bySize, bySizeMtime)
	require.Contains(t, bySizeMtime, path)
}

func TestModifyDataMarksStaleThenRescanClears(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "v1")

	idx := fsindex.New()
	require.NoError(t, idx.OnFileEvent(path, fswatch.Create))
	require.NoError(t, idx.OnFileEvent(path, fswatch.ModifyData))

	var stale bool
	idx.WithEntry(path, func(v fsindex.View) { stale = v.IsStale })
	require.True(t, stale)

	idx.StaleRescan(context.Background())

	var staleAfter bool
	var hasChecksum bool
	idx.WithEntry(path, func(v fsindex.View) {
		staleAfter = v.IsStale
		hasChecksum = v.Checksum != nil
	})
	require.False(t, staleAfter)
	require.True(t, hasChecksum)
}

func TestRemoveErasesImmediately(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "gone soon")

	idx := fsindex.New()
	require.NoError(t, idx.OnFileEvent(path, fswatch.Create))
	require.NoError(t, os.Remove(path))
	require.NoError(t, idx.OnFileEvent(path, fswatch.Remove))

	ok := idx.WithEntry(path, func(fsindex.View) {})
	require.False(t, ok, "entry should be fully erased by the Remove event, not merely deactivated")

	// A subsequent cleanup pass should find nothing left to do.
	idx.InactiveCleanupWithRetention(context.Background(), 0)
	ok = idx.WithEntry(path, func(fsindex.View) {})
	require.False(t, ok)
}

func TestDumpIndexSkipsWriteWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "dump me")

	idx := fsindex.New()
	require.NoError(t, idx.OnFileEvent(path, fswatch.Create))

	sum1, err := idx.DumpIndex(dir, checksum.Sum{})
	require.NoError(t, err)
	require.False(t, sum1.IsZero())

	dumpPath := filepath.Join(dir, ".disc", "lumo_index")
	fi1, err := os.Stat(dumpPath)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	sum2, err := idx.DumpIndex(dir, sum1)
	require.NoError(t, err)
	require.Equal(t, sum1, sum2)

	fi2, err := os.Stat(dumpPath)
	require.NoError(t, err)
	require.Equal(t, fi1.ModTime(), fi2.ModTime())
}
