package fsindex

import (
	"context"
	"os"
	"time"

	"github.com/hahatianx/lumo/lumolog"
)

// inactiveRetention is how long an inactive entry is kept before the
// cleanup loop erases it.
const inactiveRetention = 10 * time.Minute

// snapshotActive returns a point-in-time copy of every active entry's
// View, taken under the index read lock only for the duration of the
// copy (never across the per-entry refresh that follows).
func (idx *Index) snapshotActive() []View {
	idx.mu.RLock()
	views := make([]View, 0, len(idx.active))
	for p := range idx.active {
		if e, ok := idx.primary[p]; ok {
			views = append(views, e.View())
		}
	}
	idx.mu.RUnlock()
	return views
}

// StaleRescan refreshes every is_stale entry's metadata and checksum via
// the version-checked upsert path, clearing is_stale. Errors per entry
// are logged and do not abort the loop.
func (idx *Index) StaleRescan(ctx context.Context) {
	for _, v := range idx.snapshotActive() {
		if !v.IsStale {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := idx.refreshStale(v.AbsPath); err != nil {
			lumolog.Error.Printf("fsindex: stale rescan %s: %v", v.AbsPath, err)
		}
	}
}

// refreshStale recomputes a stale entry's metadata and checksum fingerprint
// and commits through the three-step protocol, clearing is_stale.
func (idx *Index) refreshStale(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return idx.remove(path)
	}
	size := fi.Size()
	mtime := roundMtime(fi.ModTime())
	sum, err := ComputeChecksum(path)
	if err != nil {
		return err
	}

	e, fromVersion, ok := idx.handle(path)
	if !ok {
		return nil
	}

	e.mu.Lock()
	oldSize, oldMtime := e.Size, e.Mtime
	newVersion := e.Version + 1
	e.Size = size
	e.Mtime = mtime
	e.IsStale = false
	e.LastModified = time.Now()
	e.Version = newVersion
	e.Checksum = &Fingerprint{Size: size, Mtime: mtime, Checksum: sum}
	e.mu.Unlock()

	return idx.commit(path, e, fromVersion, newVersion, func() {
		idx.removeFromSecondary(path, oldSize, oldMtime)
		idx.addToSecondary(path, size, mtime)
	})
}

// InactiveCleanup erases every inactive entry whose last_modified is
// older than inactiveRetention, re-validating inactivity under the
// index write lock before erasing. A Remove or missing-stat event erases
// its entry immediately (see remove), so in practice this sweep only
// has work to do if some future code path ever marks an entry inactive
// without also erasing it; it exists as a backstop against that, not as
// the primary way removed files leave the index.
func (idx *Index) InactiveCleanup(ctx context.Context) {
	idx.inactiveCleanup(ctx, inactiveRetention)
}

// InactiveCleanupWithRetention runs the cleanup pass with an explicit
// retention window, for callers (tests, ops tooling) that need to force
// an immediate pass without waiting out inactiveRetention.
func (idx *Index) InactiveCleanupWithRetention(ctx context.Context, retention time.Duration) {
	idx.inactiveCleanup(ctx, retention)
}

func (idx *Index) inactiveCleanup(ctx context.Context, retention time.Duration) {
	idx.mu.RLock()
	var candidates []string
	cutoff := time.Now().Add(-retention)
	for path, e := range idx.primary {
		if _, active := idx.active[path]; active {
			continue
		}
		if e.View().LastModified.Before(cutoff) {
			candidates = append(candidates, path)
		}
	}
	idx.mu.RUnlock()

	for _, path := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}
		idx.mu.Lock()
		if _, active := idx.active[path]; !active {
			if e, ok := idx.primary[path]; ok && e.View().LastModified.Before(cutoff) {
				idx.erase(path)
			}
		}
		idx.mu.Unlock()
	}
}
