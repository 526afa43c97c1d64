// Package fsindex maintains a concurrent, versioned index of path ->
// entry fed by filesystem-watch events, with secondary lookup indices,
// background maintenance loops, and atomic snapshot dumps.
package fsindex

import (
	"os"
	"sync"
	"time"

	"github.com/hahatianx/lumo/fswatch"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/lumolog"
)

type sizeMtimeKey struct {
	size  int64
	mtime int64 // unix seconds, after rounding
}

// Index is the process-wide file index: a primary map plus secondary
// (size) and (size, mtime) indices, an active-path set, and a mirrored
// active-version map used for lock-free race detection.
type Index struct {
	mu sync.RWMutex

	primary       map[string]*Entry
	bySize        map[int64]map[string]struct{}
	bySizeMtime   map[sizeMtimeKey]map[string]struct{}
	active        map[string]struct{}
	activeVersion map[string]uint64
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		primary:       make(map[string]*Entry),
		bySize:        make(map[int64]map[string]struct{}),
		bySizeMtime:   make(map[sizeMtimeKey]map[string]struct{}),
		active:        make(map[string]struct{}),
		activeVersion: make(map[string]uint64),
	}
}

// handle clones the shared *Entry for path along with the active-version
// mirrored for it, per step 1 of the optimistic-concurrency protocol:
// taken under the index read lock, released immediately after.
func (idx *Index) handle(path string) (e *Entry, fromVersion uint64, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok = idx.primary[path]
	if !ok {
		return nil, 0, false
	}
	return e, idx.activeVersion[path], true
}

// commit re-validates under the index write lock (step 3) that the entry
// pointer at key is still e and that activeVersion[key] still equals
// fromVersion, then applies indexMutate to move secondary indices and
// bumps the mirrored version to newVersion. It returns lumoerr.Stale if
// another writer committed first.
func (idx *Index) commit(key string, e *Entry, fromVersion, newVersion uint64, indexMutate func()) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if cur, ok := idx.primary[key]; !ok || cur != e || idx.activeVersion[key] != fromVersion {
		return lumoerr.E(lumoerr.Stale, "entry changed before commit: "+key)
	}
	indexMutate()
	idx.activeVersion[key] = newVersion
	return nil
}

func (idx *Index) removeFromSecondary(path string, size int64, mtime time.Time) {
	if s := idx.bySize[size]; s != nil {
		delete(s, path)
		if len(s) == 0 {
			delete(idx.bySize, size)
		}
	}
	key := sizeMtimeKey{size, roundMtime(mtime).Unix()}
	if s := idx.bySizeMtime[key]; s != nil {
		delete(s, path)
		if len(s) == 0 {
			delete(idx.bySizeMtime, key)
		}
	}
}

func (idx *Index) addToSecondary(path string, size int64, mtime time.Time) {
	if idx.bySize[size] == nil {
		idx.bySize[size] = make(map[string]struct{})
	}
	idx.bySize[size][path] = struct{}{}
	key := sizeMtimeKey{size, roundMtime(mtime).Unix()}
	if idx.bySizeMtime[key] == nil {
		idx.bySizeMtime[key] = make(map[string]struct{})
	}
	idx.bySizeMtime[key][path] = struct{}{}
}

// upsertStat stats path and (re)inserts/refreshes the entry for it,
// following the three-step protocol. If no entry exists yet, one is
// created directly under the index write lock (there is nothing to race
// against).
func (idx *Index) upsertStat(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return idx.remove(path)
	}
	size := fi.Size()
	mtime := roundMtime(fi.ModTime())

	e, fromVersion, ok := idx.handle(path)
	if !ok {
		idx.mu.Lock()
		if existing, ok := idx.primary[path]; ok {
			e = existing
			fromVersion = idx.activeVersion[path]
			idx.mu.Unlock()
		} else {
			ne := &Entry{AbsPath: path, Size: size, Mtime: mtime, IsActive: true, LastModified: time.Now(), Version: 1}
			idx.primary[path] = ne
			idx.active[path] = struct{}{}
			idx.activeVersion[path] = 1
			idx.addToSecondary(path, size, mtime)
			idx.mu.Unlock()
			return nil
		}
	}

	e.mu.Lock()
	oldSize, oldMtime := e.Size, e.Mtime
	newVersion := e.Version + 1
	e.Size = size
	e.Mtime = mtime
	e.IsActive = true
	e.IsStale = false
	e.LastModified = time.Now()
	e.Version = newVersion
	e.mu.Unlock()

	err = idx.commit(path, e, fromVersion, newVersion, func() {
		idx.removeFromSecondary(path, oldSize, oldMtime)
		idx.active[path] = struct{}{}
		idx.addToSecondary(path, size, mtime)
	})
	if err != nil {
		lumolog.Error.Printf("fsindex: upsert %s: %v", path, err)
	}
	return err
}

// markStale marks an existing entry stale, bumping its version.
func (idx *Index) markStale(path string) error {
	e, fromVersion, ok := idx.handle(path)
	if !ok {
		return idx.upsertStat(path)
	}

	e.mu.Lock()
	newVersion := e.Version + 1
	e.IsStale = true
	e.LastModified = time.Now()
	e.Version = newVersion
	e.mu.Unlock()

	err := idx.commit(path, e, fromVersion, newVersion, func() {})
	if err != nil {
		lumolog.Error.Printf("fsindex: mark stale %s: %v", path, err)
	}
	return err
}

// remove erases path from the index in one step: primary, active set,
// active-version, and both secondary indices. A Remove or missing-stat
// event means the watcher has already told us the path is gone, so there
// is nothing to gain by deactivating now and deleting from primary later
// — unlike markStale/upsertStat, there's no future event that would ever
// need to find a deactivated-but-still-present entry here.
func (idx *Index) remove(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.erase(path)
	return nil
}

// erase drops path entirely from the index: primary, active, active-version
// and both secondary indices. Callers must hold idx.mu for writing.
func (idx *Index) erase(path string) {
	e, ok := idx.primary[path]
	if !ok {
		return
	}
	idx.removeFromSecondary(path, e.Size, e.Mtime)
	delete(idx.primary, path)
	delete(idx.active, path)
	delete(idx.activeVersion, path)
}

// OnFileEvent applies a filtered filesystem event to the index per
// spec.md §4.2.
func (idx *Index) OnFileEvent(path string, kind fswatch.EventKind) error {
	switch kind {
	case fswatch.Create, fswatch.ModifyName:
		if _, err := os.Stat(path); err != nil {
			return idx.remove(path)
		}
		return idx.upsertStat(path)
	case fswatch.ModifyData:
		if _, err := os.Stat(path); err != nil {
			return idx.remove(path)
		}
		return idx.markStale(path)
	case fswatch.Remove:
		if _, err := os.Stat(path); err == nil {
			return nil // out-of-order: file still exists, ignore
		}
		return idx.remove(path)
	default:
		return lumoerr.E(lumoerr.Invalid, "unknown event kind")
	}
}

// WithEntry calls fn with a snapshot of the entry at path, if present.
func (idx *Index) WithEntry(path string, fn func(View)) bool {
	idx.mu.RLock()
	e, ok := idx.primary[path]
	idx.mu.RUnlock()
	if !ok {
		return false
	}
	fn(e.View())
	return true
}

// CandidatesBySize returns the set of active paths with the given size.
func (idx *Index) CandidatesBySize(size int64) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.activePaths(idx.bySize[size])
}

// CandidatesBySizeMtime returns the set of active paths with the given
// (size, mtime).
func (idx *Index) CandidatesBySizeMtime(size int64, mtime time.Time) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	key := sizeMtimeKey{size, roundMtime(mtime).Unix()}
	return idx.activePaths(idx.bySizeMtime[key])
}

// CandidatesFor returns (size,mtime) candidates, falling back to
// size-only candidates when the former is empty.
func (idx *Index) CandidatesFor(size int64, mtime time.Time) []string {
	if c := idx.CandidatesBySizeMtime(size, mtime); len(c) > 0 {
		return c
	}
	return idx.CandidatesBySize(size)
}

// ActivePaths returns every currently active path, for the ListLocalFiles
// API request.
func (idx *Index) ActivePaths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.active))
	for p := range idx.active {
		out = append(out, p)
	}
	return out
}

func (idx *Index) activePaths(set map[string]struct{}) []string {
	paths := make([]string, 0, len(set))
	for p := range set {
		if _, active := idx.active[p]; active {
			paths = append(paths, p)
		}
	}
	return paths
}
