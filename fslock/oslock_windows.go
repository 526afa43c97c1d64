//go:build windows

package fslock

import (
	"context"
	"sync"

	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/retry"
	"golang.org/x/sys/windows"
)

const (
	reservedOverlapped = 0
	allBytes           = ^uint32(0)
)

// osLock is the Windows counterpart of the unix osLock, based on
// LockFileEx/UnlockFileEx the way Go's internal lockedfile package does.
type osLock struct {
	path   string
	mu     sync.Mutex
	handle windows.Handle
}

func newOSLock(path string) *osLock {
	return &osLock{path: path}
}

func (o *osLock) lock(ctx context.Context) error {
	o.mu.Lock()
	handle, err := windows.Open(o.path, windows.O_RDWR, 0)
	if err != nil {
		o.mu.Unlock()
		return lumoerr.E(lumoerr.NotExist, "path does not exist", err)
	}
	o.handle = handle

	policy := backoffPolicy()
	for retries := 0; ; retries++ {
		ol := new(windows.Overlapped)
		err = windows.LockFileEx(o.handle, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, reservedOverlapped, allBytes, allBytes, ol)
		if err == nil {
			return nil
		}
		if werr := retry.Wait(ctx, policy, retries); werr != nil {
			windows.Close(o.handle)
			o.mu.Unlock()
			return lumoerr.E(lumoerr.Timeout, "timed out acquiring file lock on "+o.path, werr)
		}
	}
}

func (o *osLock) unlock() {
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(o.handle, reservedOverlapped, allBytes, allBytes, ol)
	windows.Close(o.handle)
	o.mu.Unlock()
}
