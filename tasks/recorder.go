package tasks

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// recorder mediates all status transitions for a single job. Writes are
// serialized by mu; reads go through an atomic pointer so Table snapshots
// never block on an in-flight transition, mirroring lumoerr.Once's
// guarded-write/atomic-read shape generalized from a single error to a
// full JobSummary.
type recorder struct {
	mu      sync.Mutex
	current unsafe.Pointer // *JobSummary
}

func newRecorder(initial JobSummary) *recorder {
	r := &recorder{}
	r.store(initial)
	return r
}

func (r *recorder) load() JobSummary {
	return *(*JobSummary)(atomic.LoadPointer(&r.current))
}

func (r *recorder) store(s JobSummary) {
	atomic.StorePointer(&r.current, unsafe.Pointer(&s))
}

// transition applies fn to the current summary and publishes the result,
// serialized against concurrent transitions on the same job.
func (r *recorder) transition(fn func(JobSummary) JobSummary) JobSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := fn(r.load())
	r.store(next)
	return next
}
