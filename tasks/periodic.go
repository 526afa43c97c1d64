package tasks

import (
	"context"
	"time"

	"github.com/hahatianx/lumo/lumolog"
)

// PeriodicJob runs fn immediately and then every period until shutdown is
// signaled. Errors are logged, never fatal to the loop.
type PeriodicJob struct {
	table *Table
	id    uint64
	r     *recorder
	fn    func(ctx context.Context) error
	period time.Duration
}

// NewPeriodicJob registers and returns a periodic job; call Run to start it.
func NewPeriodicJob(table *Table, name, summary string, period time.Duration, fn func(ctx context.Context) error) *PeriodicJob {
	id, r := table.register(name, summary, KindPeriodic, period)
	return &PeriodicJob{table: table, id: id, r: r, fn: fn, period: period}
}

// ID returns the job's table id.
func (j *PeriodicJob) ID() uint64 { return j.id }

// Run blocks, executing fn on the configured period, until ctx is
// cancelled (shutdown).
func (j *PeriodicJob) Run(ctx context.Context) {
	j.r.transition(func(s JobSummary) JobSummary { s.Status = Running; return s })
	ticker := time.NewTicker(j.period)
	defer ticker.Stop()

	run := func() {
		if err := j.fn(ctx); err != nil {
			lumolog.Error.Printf("tasks: periodic job %s: %v", j.r.load().Name, err)
		}
	}
	run()
	for {
		select {
		case <-ctx.Done():
			j.r.transition(func(s JobSummary) JobSummary { return s.withStatus(Shutdown, ctx.Err().Error()) })
			return
		case <-ticker.C:
			run()
		}
	}
}
