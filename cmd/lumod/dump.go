package main

import (
	"context"
	"sync"
	"time"

	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/fsindex"
)

// dumpCoalesceWindow is how long a successful index dump is considered
// fresh enough to skip recomputing: the periodic sweep and a
// shutdown-time flush can land within milliseconds of each other and
// shouldn't both re-walk the active set.
const dumpCoalesceWindow = 2 * time.Second

// indexDumper serializes fsindex.Index.DumpIndex calls so concurrent
// callers (the periodic sweep, an explicit shutdown flush) share one
// in-flight dump instead of racing to write lumo_index twice. It is a
// single-flight cache specialized to DumpIndex's own (checksum.Sum, error)
// shape, not a general-purpose value cache.
type indexDumper struct {
	idx     *fsindex.Index
	workDir string

	mu         sync.Mutex
	inProgress bool
	waiters    chan struct{} // closed and replaced each time a dump finishes
	valid      bool
	expiresAt  time.Time
	prev       checksum.Sum
}

func newIndexDumper(idx *fsindex.Index, workDir string) *indexDumper {
	return &indexDumper{idx: idx, workDir: workDir}
}

// Flush writes the current index snapshot to disk if it differs from the
// last write, reusing a recent result if one is already cached. Concurrent
// callers within dumpCoalesceWindow of a completed dump return immediately;
// a caller arriving mid-dump waits for it rather than starting a second one,
// and gives up early if ctx is done first.
func (d *indexDumper) Flush(ctx context.Context) error {
	d.mu.Lock()
	for {
		if d.valid && time.Now().Before(d.expiresAt) {
			d.mu.Unlock()
			return nil
		}
		if !d.inProgress {
			break
		}
		waiters := d.waiters
		d.mu.Unlock()
		select {
		case <-waiters:
			d.mu.Lock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.inProgress = true
	d.waiters = make(chan struct{})
	d.mu.Unlock()

	got, err := d.idx.DumpIndex(d.workDir, d.prev)

	d.mu.Lock()
	d.inProgress = false
	if err == nil {
		d.prev = got
		d.valid = true
		d.expiresAt = time.Now().Add(dumpCoalesceWindow)
	}
	close(d.waiters)
	d.mu.Unlock()
	return err
}
