// Package fslock implements a per-path reader/writer lock that is safe both
// within a process and across processes sharing the same working directory.
//
// Multiple readers within one process run concurrently; a writer excludes
// all readers and other writers in-process. Across processes, the first
// in-process reader and any writer additionally take an OS-level advisory
// lock on the path (shared among in-process readers by reference count).
package fslock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/retry"
)

// osBackoffInitial, osBackoffMax and osBackoffTries bound the retry policy
// used while acquiring the cross-process advisory lock: 10ms growing to
// 500ms, capped at roughly 100 attempts.
const (
	osBackoffInitial = 10 * time.Millisecond
	osBackoffMax     = 500 * time.Millisecond
	osBackoffFactor  = 1.5
	osBackoffTries   = 100
)

// RWLock is a reader/writer lock bound to a single filesystem path. Use
// New to obtain the lock for a given path; callers sharing a path within a
// process should share the same *RWLock instance (a registry, see
// Registry, does this for callers that don't already share one).
type RWLock struct {
	path string

	mu sync.RWMutex

	// state guards readers and admitting below. It is only ever held for
	// fast, non-blocking bookkeeping: the OS lock acquisition itself
	// always happens with state unlocked.
	state     sync.Mutex
	readers   int
	admitting chan struct{} // non-nil while a goroutine is admitting the first reader

	osLock *osLock
}

// New returns the lock for path. The file at path is not required to exist
// until a guard is actually opened.
func New(path string) *RWLock {
	return &RWLock{path: path, osLock: newOSLock(path)}
}

// ReadGuard is returned by Read and dereferences to a file opened
// read-only, positioned at offset zero.
type ReadGuard struct {
	*os.File
	l *RWLock
}

// Close releases the read guard, decrementing the reader count and, if
// this was the last in-process reader, releasing the OS-level lock.
func (g *ReadGuard) Close() error {
	err := g.File.Close()
	g.l.releaseRead()
	return err
}

// WriteGuard is returned by Write and dereferences to a file opened for
// reading and writing, positioned at offset zero.
type WriteGuard struct {
	*os.File
	l *RWLock
}

// Close releases the write guard, releasing the in-process exclusive lock
// and the OS-level lock.
func (g *WriteGuard) Close() error {
	err := g.File.Close()
	g.l.mu.Unlock()
	g.l.osLock.unlock()
	return err
}

// Read acquires a read guard on the lock's path. Multiple readers in the
// same process may hold a guard concurrently. If ctx is done while a
// writer still holds the lock, Read gives up and returns an error.
func (l *RWLock) Read(ctx context.Context) (*ReadGuard, error) {
	locked := make(chan struct{})
	go func() {
		l.mu.RLock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-ctx.Done():
		// Release the read lock as soon as the pending RLock gets it.
		go func() {
			<-locked
			l.mu.RUnlock()
		}()
		return nil, lumoerr.E("waiting for read lock on "+l.path, ctx.Err())
	}

	if err := l.acquireFirstReader(ctx); err != nil {
		l.mu.RUnlock()
		return nil, err
	}

	f, err := os.Open(l.path)
	if err != nil {
		l.releaseRead()
		return nil, lumoerr.E(lumoerr.NotExist, "path does not exist", err)
	}
	return &ReadGuard{File: f, l: l}, nil
}

// acquireFirstReader increments the in-process reader count and, if this
// caller is the first reader, takes the OS lock. Taking the OS lock never
// happens while l.state is held: the first caller installs an "admitting"
// channel, releases state, blocks on the OS lock, then re-takes state to
// record the outcome and wake any readers that arrived in the meantime. If
// the admitting caller's context is cancelled mid-acquisition, the refcount
// is never advanced and the next waiter becomes the new admitter.
func (l *RWLock) acquireFirstReader(ctx context.Context) error {
	for {
		l.state.Lock()
		if l.readers > 0 {
			l.readers++
			l.state.Unlock()
			return nil
		}
		if ch := l.admitting; ch != nil {
			l.state.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		ch := make(chan struct{})
		l.admitting = ch
		l.state.Unlock()

		err := l.osLock.lock(ctx)

		l.state.Lock()
		if err == nil {
			l.readers++
		}
		l.admitting = nil
		l.state.Unlock()
		close(ch)
		return err
	}
}

func (l *RWLock) releaseRead() {
	l.state.Lock()
	l.readers--
	last := l.readers == 0
	l.state.Unlock()
	if last {
		l.osLock.unlock()
	}
	l.mu.RUnlock()
}

// Write acquires the exclusive write guard on the lock's path, excluding
// all readers and other writers in this process, and taking the OS lock.
func (l *RWLock) Write(ctx context.Context) (*WriteGuard, error) {
	l.mu.Lock()

	if err := l.osLock.lock(ctx); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR, 0)
	if err != nil {
		l.osLock.unlock()
		l.mu.Unlock()
		return nil, lumoerr.E(lumoerr.NotExist, "path does not exist", err)
	}
	return &WriteGuard{File: f, l: l}, nil
}

func backoffPolicy() retry.Policy {
	return retry.MaxRetries(retry.Backoff(osBackoffInitial, osBackoffMax, osBackoffFactor), osBackoffTries)
}
