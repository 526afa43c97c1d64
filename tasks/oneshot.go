package tasks

import (
	"context"
	"time"
)

// OneshotJob wraps a single fn invocation with an optional timeout. The
// outcome maps to JobSummary.Status: success -> Completed, error ->
// Failed, timeout -> TimedOut.
type OneshotJob struct {
	table   *Table
	id      uint64
	r       *recorder
	fn      func(ctx context.Context) error
	timeout time.Duration
}

// NewOneshotJob registers a one-shot job. timeout <= 0 means no deadline
// beyond the caller's own ctx.
func NewOneshotJob(table *Table, name, summary string, timeout time.Duration, fn func(ctx context.Context) error) *OneshotJob {
	id, r := table.register(name, summary, KindOneshot, 0)
	return &OneshotJob{table: table, id: id, r: r, fn: fn, timeout: timeout}
}

// ID returns the job's table id.
func (j *OneshotJob) ID() uint64 { return j.id }

// Run executes fn once, racing it against j.timeout if set, and records
// the outcome.
func (j *OneshotJob) Run(ctx context.Context) {
	j.r.transition(func(s JobSummary) JobSummary { s.Status = Running; return s })

	runCtx := ctx
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- j.fn(runCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			j.r.transition(func(s JobSummary) JobSummary { return s.withStatus(Failed, err.Error()) })
			return
		}
		j.r.transition(func(s JobSummary) JobSummary { return s.withStatus(Completed, "") })
	case <-runCtx.Done():
		j.r.transition(func(s JobSummary) JobSummary { return s.withStatus(TimedOut, runCtx.Err().Error()) })
	}
}
