// lumod is the shared-disc daemon: it watches a working directory,
// indexes its contents, and serves/consumes PULL requests from other
// nodes holding the same shared connection token.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/fsindex"
	"github.com/hahatianx/lumo/fslock"
	"github.com/hahatianx/lumo/fswatch"
	"github.com/hahatianx/lumo/lumoenv"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/must"
	"github.com/hahatianx/lumo/peers"
	"github.com/hahatianx/lumo/shutdown"
	"github.com/hahatianx/lumo/sync/multierror"
	"github.com/hahatianx/lumo/sync/workerpool"
	"github.com/hahatianx/lumo/tasks"
	"github.com/hahatianx/lumo/transfer"
)

const daemonVersion = "lumo/1"

// tcpConcurrency bounds how many inbound file transfers this node streams
// at once; spec.md leaves the limit to the implementation.
const tcpConcurrency = 8

// pullValidity bounds how old a PULL's embedded timestamp may be before
// it is treated as a replay; spec.md leaves the exact window to the
// implementation ("a few seconds").
const pullValidity = 5 * time.Second

// helloInterval is how often this node broadcasts its own HELLO;
// spec.md specifies the wire format but not a period, so this picks a
// value well under peers.DefaultExpiry (60s) so a live peer is refreshed
// several times before it could be taken for dead.
const helloInterval = 10 * time.Second

func main() {
	var flags lumoenv.Flags
	lumoenv.RegisterFlags(flag.CommandLine, &flags)
	flag.Parse()

	env, err := lumoenv.Resolve(flags)
	if err != nil {
		lumolog.Fatalf("lumod: %v", err)
	}

	fileOut, err := lumolog.NewFileOutputter(env.WorkDir, lumolog.GetOutputter())
	must.Nil(err)
	lumolog.SetOutputter(fileOut)
	shutdown.Register(func() {
		if closer, ok := fileOut.(interface{ Close() error }); ok {
			closer.Close()
		}
	})

	cipher, err := aecrypt.New(env.AEKey)
	must.Nil(err)

	ctx, cancel := context.WithCancel(context.Background())
	shutdown.Register(cancel)

	idx := fsindex.New()
	locks := fslock.NewRegistry()
	table := tasks.NewTable()
	peerTable := peers.NewTable()

	watcher, err := fswatch.New(env.WorkDir)
	must.Nilf(err, "watching %s", env.WorkDir)
	shutdown.Register(func() { watcher.Close() })
	go watcher.Run(ctx)
	go pumpFileEvents(ctx, watcher, idx)

	conn, err := control.Listen(env.UDPPort, env.LocalIP.String(), cipher)
	must.Nilf(err, "binding UDP control socket on port %d", env.UDPPort)
	shutdown.Register(func() { conn.Close() })

	sender := transfer.NewSender(env.WorkDir, env.LocalIP.String(), cipher, pullValidity, table, locks)
	receiver := transfer.NewReceiver(env.WorkDir, env.LocalIP.String(), cipher, env.TCPPort, table, locks, conn)

	d := &daemon{
		env:      env,
		cipher:   cipher,
		conn:     conn,
		peers:    peerTable,
		sender:   sender,
		receiver: receiver,
		api: &apiHandler{
			env:      env,
			peers:    peerTable,
			tasks:    table,
			idx:      idx,
			sender:   sender,
			receiver: receiver,
		},
	}

	ln, err := net.Listen("tcp4", net.JoinHostPort("", strconv.Itoa(env.TCPPort)))
	must.Nilf(err, "binding TCP data socket on port %d", env.TCPPort)
	wp, grp := newTCPPool(ctx)
	// Registered before the listener close below: shutdown runs hooks in
	// reverse order, so the listener stops accepting first and this drain
	// waits out whatever connections were already in flight.
	shutdown.Register(func() { grp.Wait(); wp.Wait() })
	shutdown.Register(func() { ln.Close() })
	go serveTCP(ctx, ln, sender, grp)

	dumper := newIndexDumper(idx, env.WorkDir)
	shutdown.Register(func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := dumper.Flush(flushCtx); err != nil {
			lumolog.Error.Printf("fsindex: final dump on shutdown: %v", err)
		}
	})

	startPeriodicJobs(ctx, table, idx, peerTable, conn, env, dumper)

	go func() {
		if err := conn.Serve(ctx, d.handleEnvelope); err != nil && ctx.Err() == nil {
			lumolog.Error.Printf("lumod: control socket serve loop exited: %v", err)
		}
	}()

	lumolog.Printf("lumod: serving %s as %s (udp %d, tcp %d)", env.WorkDir, env.LocalIP, env.UDPPort, env.TCPPort)
	waitForSignal()
	shutdown.Run()
}

// pumpFileEvents feeds filtered filesystem events into the index until
// ctx is cancelled (process shutdown).
func pumpFileEvents(ctx context.Context, w *fswatch.Watcher, idx *fsindex.Index) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if err := idx.OnFileEvent(ev.Path, ev.Kind); err != nil {
				lumolog.Error.Printf("fsindex: applying %s event for %s: %v", ev.Kind, ev.Path, err)
			}
		}
	}
}

// newTCPPool builds the worker pool that bounds concurrent TCP transfer
// handling to tcpConcurrency, with a single task group spanning the
// daemon's lifetime.
func newTCPPool(ctx context.Context) (*workerpool.WorkerPool, *workerpool.TaskGroup) {
	wp := workerpool.New(ctx, tcpConcurrency)
	grp := wp.NewTaskGroup("tcp-transfers", multierror.NewMultiError(tcpConcurrency))
	return wp, grp
}

// connTask streams one accepted TCP connection through Sender.HandleConn.
type connTask struct {
	conn   net.Conn
	sender *transfer.Sender
}

func (t *connTask) Do(grp *workerpool.TaskGroup) error {
	defer t.conn.Close()
	t.sender.HandleConn(grp.Wp.Ctx, t.conn)
	return nil
}

// serveTCP accepts the data-plane listener's connections and enqueues each
// onto grp, which a fixed pool of tcpConcurrency workers drains, so one
// slow peer can stall at most one worker rather than spawn unboundedly.
func serveTCP(ctx context.Context, ln net.Listener, sender *transfer.Sender, grp *workerpool.TaskGroup) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lumolog.Error.Printf("transfer: accepting TCP connection: %v", err)
			continue
		}
		grp.Enqueue(&connTask{conn: conn, sender: sender}, true)
	}
}

// startPeriodicJobs registers and runs the daemon's background
// convergence passes: stale/inactive fsindex sweeps, peer anti-entropy,
// and the HELLO broadcast heartbeat.
func startPeriodicJobs(ctx context.Context, table *tasks.Table, idx *fsindex.Index, peerTable *peers.Table, conn *control.Conn, env lumoenv.Env, dumper *indexDumper) {
	staleJob := tasks.NewPeriodicJob(table, "fsindex:stale-rescan", "refresh stale entries", 5*time.Second, func(ctx context.Context) error {
		idx.StaleRescan(ctx)
		return nil
	})
	go staleJob.Run(ctx)

	dumpJob := tasks.NewPeriodicJob(table, "fsindex:dump", "persist index snapshot", 5*time.Second, func(ctx context.Context) error {
		return dumper.Flush(ctx)
	})
	go dumpJob.Run(ctx)

	cleanupJob := tasks.NewPeriodicJob(table, "fsindex:inactive-cleanup", "erase retired entries", time.Minute, func(ctx context.Context) error {
		idx.InactiveCleanup(ctx)
		return nil
	})
	go cleanupJob.Run(ctx)

	antiEntropyJob := tasks.NewPeriodicJob(table, "peers:anti-entropy", "deactivate stale peers", peers.DefaultExpiry, func(ctx context.Context) error {
		peerTable.AntiEntropy(time.Now())
		return nil
	})
	go antiEntropyJob.Run(ctx)

	helloJob := tasks.NewPeriodicJob(table, "control:hello-broadcast", "announce liveness", helloInterval, func(ctx context.Context) error {
		hello := control.Hello{
			FromIP:   env.LocalIP.String(),
			FromPort: uint64(env.UDPPort),
			FromName: env.MachineName,
			MACAddr:  env.LocalMAC.String(),
			Mode:     0,
		}
		return conn.Broadcast(ctx, hello.Encode())
	})
	go helloJob.Run(ctx)
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
