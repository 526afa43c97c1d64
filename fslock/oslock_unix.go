//go:build !windows

package fslock

import (
	"context"
	"sync"
	"syscall"

	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/retry"
)

// osLock is a cross-process advisory lock on a single path, held via
// syscall.Flock. It is safe to call lock/unlock from only one goroutine at
// a time; fslock's admission singleflight enforces that.
type osLock struct {
	path string
	mu   sync.Mutex
	fd   int
}

func newOSLock(path string) *osLock {
	return &osLock{path: path}
}

func (o *osLock) lock(ctx context.Context) error {
	o.mu.Lock()
	fd, err := syscall.Open(o.path, syscall.O_RDWR, 0)
	if err != nil {
		o.mu.Unlock()
		return lumoerr.E(lumoerr.NotExist, "path does not exist", err)
	}
	o.fd = fd

	policy := backoffPolicy()
	for retries := 0; ; retries++ {
		err = syscall.Flock(o.fd, syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			syscall.Close(o.fd)
			o.mu.Unlock()
			return lumoerr.E(lumoerr.Unavailable, "acquiring file lock", err)
		}
		lumolog.Debug.Printf("fslock: waiting for OS lock on %s", o.path)
		if werr := retry.Wait(ctx, policy, retries); werr != nil {
			syscall.Close(o.fd)
			o.mu.Unlock()
			return lumoerr.E(lumoerr.Timeout, "timed out acquiring file lock on "+o.path, werr)
		}
	}
}

func (o *osLock) unlock() {
	err := syscall.Flock(o.fd, syscall.LOCK_UN)
	if err != nil {
		lumolog.Error.Printf("fslock: unlocking %s: %v", o.path, err)
	}
	if err := syscall.Close(o.fd); err != nil {
		lumolog.Error.Printf("fslock: closing %s: %v", o.path, err)
	}
	o.mu.Unlock()
}
