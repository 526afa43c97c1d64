// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package once guards the daemon's two shutdown paths (control.Conn.Close
// and fswatch.Watcher.Close) so a concurrent caller never re-runs the
// underlying teardown or observes a partial one.
package once

import (
	"sync"
	"sync/atomic"
)

// Task manages a computation that must be run at most once.
// It's similar to sync.Once, except it also handles and returns errors.
type Task struct {
	mu   sync.Mutex
	done uint32
	err  error
}

// Do runs the function do at most once. Successive invocations of Do
// guarantee exactly one invocation of the function do. Do returns
// the error of do's invocation.
func (o *Task) Do(do func() error) error {
	if atomic.LoadUint32(&o.done) == 1 {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if atomic.LoadUint32(&o.done) == 0 {
		o.err = do()
		atomic.StoreUint32(&o.done, 1)
	}
	return o.err
}

// Done returns whether the task is done.
func (o *Task) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return 1 == atomic.LoadUint32(&o.done)
}
