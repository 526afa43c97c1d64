package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/hahatianx/lumo/tasks"
	"github.com/stretchr/testify/require"
)

func TestQueueSendAndDispatch(t *testing.T) {
	q := tasks.NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	done := make(chan struct{})
	require.NoError(t, q.Send(ctx, tasks.Message{Run: func(context.Context) { close(done) }}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched")
	}
}

func TestQueueTrySendFullReturnsError(t *testing.T) {
	q := tasks.NewQueue(2)
	block := make(chan struct{})
	require.NoError(t, q.TrySend(tasks.Message{Run: func(context.Context) { <-block } }))
	require.NoError(t, q.TrySend(tasks.Message{Run: func(context.Context) {}}))
	err := q.TrySend(tasks.Message{Run: func(context.Context) {}})
	require.Error(t, err)
	close(block)
}

func TestQueueShutdownRejectsSend(t *testing.T) {
	q := tasks.NewQueue(1)
	q.Shutdown()
	require.Error(t, q.TrySend(tasks.Message{Run: func(context.Context) {}}))
}

func TestPeriodicJobRunsUntilCancel(t *testing.T) {
	table := tasks.NewTable()
	var n int
	job := tasks.NewPeriodicJob(table, "tick", "ticks", 20*time.Millisecond, func(context.Context) error {
		n++
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	job.Run(ctx)
	require.GreaterOrEqual(t, n, 2)

	s, ok := table.Get(job.ID())
	require.True(t, ok)
	require.Equal(t, tasks.Shutdown, s.Status)
}

func TestOneshotJobCompletesAndFails(t *testing.T) {
	table := tasks.NewTable()
	ok := tasks.NewOneshotJob(table, "ok", "", 0, func(context.Context) error { return nil })
	ok.Run(context.Background())
	s, _ := table.Get(ok.ID())
	require.Equal(t, tasks.Completed, s.Status)

	bad := tasks.NewOneshotJob(table, "bad", "", 0, func(context.Context) error { return errBoom })
	bad.Run(context.Background())
	s, _ = table.Get(bad.ID())
	require.Equal(t, tasks.Failed, s.Status)
}

func TestOneshotJobTimesOut(t *testing.T) {
	table := tasks.NewTable()
	j := tasks.NewOneshotJob(table, "slow", "", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	j.Run(context.Background())
	s, _ := table.Get(j.ID())
	require.Equal(t, tasks.TimedOut, s.Status)
}

func TestClaimableJobClaimWinsOverTimeout(t *testing.T) {
	table := tasks.NewTable()
	var cleaned bool
	j := tasks.NewClaimableJob(table, "pull", "", func() { cleaned = true })

	h, ok := j.Claim()
	require.True(t, ok)
	require.NotNil(t, h)

	go j.Run(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	require.False(t, cleaned)
	_, ok = j.Claim()
	require.False(t, ok, "a second claim must fail")
}

func TestClaimableJobTimesOutWithoutClaim(t *testing.T) {
	table := tasks.NewTable()
	var cleaned bool
	j := tasks.NewClaimableJob(table, "pull", "", func() { cleaned = true })

	j.Run(context.Background(), 10*time.Millisecond)
	require.True(t, cleaned)

	_, ok := j.Claim()
	require.False(t, ok)

	_, ok = table.Get(j.ID())
	require.False(t, ok, "table drops the job once it times out")
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
