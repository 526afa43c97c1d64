package tasks

import (
	"context"
	"sync"
	"time"
)

// Default claim deadlines per spec.md §4.4 / §5.
const (
	TransferClaimTimeout  = 120 * time.Second
	BootstrapClaimTimeout = 30 * time.Second
)

type claimState int

const (
	claimPending claimState = iota
	claimClaimed
	claimTimedOut
)

// Handle is transferred to whichever party successfully claims a
// ClaimableJob; it is the claimant's only way to drive further status
// transitions on the job.
type Handle struct {
	r *recorder
}

// SetRunning marks the claimed job Running.
func (h *Handle) SetRunning() {
	h.r.transition(func(s JobSummary) JobSummary { s.Status = Running; return s })
}

// Complete marks the claimed job Completed or Failed(reason).
func (h *Handle) Complete(err error) {
	if err != nil {
		h.r.transition(func(s JobSummary) JobSummary { return s.withStatus(Failed, err.Error()) })
		return
	}
	h.r.transition(func(s JobSummary) JobSummary { return s.withStatus(Completed, "") })
}

// ClaimableJob is a placeholder job that owns no action of its own; it
// waits for an external party to claim it before anything runs. A claim
// and a concurrent timeout both resolve through the same mutex, so
// whichever reaches it first decides the outcome; Claim always wins
// against a timeout that has not yet acquired the lock, matching
// spec.md's "claim wins over simultaneous timeout" without needing a
// tokio-style biased select (Go's select has no such bias).
type ClaimableJob struct {
	table   *Table
	id      uint64
	r       *recorder
	cleanup func()

	mu     sync.Mutex
	state  claimState
	notify chan struct{} // closed once claimed, wakes Run early
}

// NewClaimableJob registers a claimable job. cleanup runs if the job times
// out before being claimed.
func NewClaimableJob(table *Table, name, summary string, cleanup func()) *ClaimableJob {
	id, r := table.register(name, summary, KindClaimable, 0)
	return &ClaimableJob{table: table, id: id, r: r, cleanup: cleanup, notify: make(chan struct{})}
}

// ID returns the job's table id.
func (j *ClaimableJob) ID() uint64 { return j.id }

// Claim attempts to take ownership of the job. It succeeds at most once;
// a caller arriving after a claim or a timeout gets ok=false.
func (j *ClaimableJob) Claim() (h *Handle, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != claimPending {
		return nil, false
	}
	j.state = claimClaimed
	close(j.notify)
	return &Handle{r: j.r}, true
}

// Run waits up to timeout for a claim. If none arrives in time it runs
// cleanup, marks the job TimedOut, and drops it from the table.
func (j *ClaimableJob) Run(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-j.notify:
		return
	case <-ctx.Done():
	case <-timer.C:
	}

	j.mu.Lock()
	if j.state == claimClaimed {
		j.mu.Unlock()
		return
	}
	j.state = claimTimedOut
	j.mu.Unlock()

	if j.cleanup != nil {
		j.cleanup()
	}
	j.r.transition(func(s JobSummary) JobSummary { return s.withStatus(TimedOut, "claim deadline elapsed") })
	j.table.Drop(j.id)
}
