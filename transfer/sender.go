package transfer

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/fsindex"
	"github.com/hahatianx/lumo/fslock"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/lumolog"
	"github.com/hahatianx/lumo/tasks"
)

// rejectionOK is the zero RejectionReason, used internally by prepare to
// mean "no rejection" — it is never placed on the wire.
const rejectionOK control.RejectionReason = 0

// Sender is the server side of the pull protocol (spec.md §4.7.1): it
// turns an accepted PULL into an encrypted temp file plus a
// ClaimableJob, then streams that file once a FileSync claims it over
// TCP.
type Sender struct {
	workDir      string
	selfIP       string
	cipher       *aecrypt.Cipher
	pullValidity time.Duration

	table *tasks.Table
	locks *fslock.Registry
	pulls *pullRegistry
	seen  *challengeReplayCache
}

// NewSender builds a Sender rooted at workDir, using cipher for the
// FileSync/FileSyncAck AEAD layer and the encrypted file copy, and locks
// for per-path coordination with local writers.
func NewSender(workDir, selfIP string, cipher *aecrypt.Cipher, pullValidity time.Duration, table *tasks.Table, locks *fslock.Registry) *Sender {
	return &Sender{
		workDir:      workDir,
		selfIP:       selfIP,
		cipher:       cipher,
		pullValidity: pullValidity,
		table:        table,
		locks:        locks,
		pulls:        newPullRegistry(),
		seen:         newChallengeReplayCache(pullValidity),
	}
}

// HandlePull validates an inbound PULL and, if accepted, prepares the
// source file and registers the resulting PendingPull, returning the
// PULL_RESPONSE decision to send back. A challenge is honored at most once
// within pullValidity: a repeat is a replay of a datagram we already
// answered, not a fresh request.
func (s *Sender) HandlePull(ctx context.Context, fromAddr *net.UDPAddr, req control.PullRequest) control.PullDecision {
	if req.FromIP != fromAddr.IP.String() || !req.Fresh(time.Now(), s.pullValidity) {
		return control.PullDecision{Challenge: req.Challenge, Reason: control.AccessDenied}
	}
	if s.seen.SeenRecently(req.Challenge) {
		return control.PullDecision{Challenge: req.Challenge, Reason: control.AccessDenied}
	}
	s.seen.Mark(req.Challenge)

	pending, reason, err := s.prepare(ctx, req.Path, req.Checksum)
	if err != nil {
		lumolog.Error.Printf("transfer: preparing pull source %s: %v", req.Path, err)
		return control.PullDecision{Challenge: req.Challenge, Reason: control.InternalError}
	}
	if reason != rejectionOK {
		return control.PullDecision{Challenge: req.Challenge, Reason: reason}
	}
	return control.PullDecision{Accepted: true, Challenge: req.Challenge, Nonce: pending.Nonce}
}

// PrepareLocal drives the same checksum/lock/encrypt/register sequence
// HandlePull uses for a remote PULL, for the LocalPullFile API request:
// a caller on this machine wants a claimable temp copy of a local file
// without going through the UDP round trip.
func (s *Sender) PrepareLocal(ctx context.Context, path string, toChecksum control.Checksum) (nonce uint64, reason control.RejectionReason, err error) {
	pending, reason, err := s.prepare(ctx, path, toChecksum)
	if err != nil || reason != rejectionOK {
		return 0, reason, err
	}
	return pending.Nonce, rejectionOK, nil
}

// prepare checksums, locks, and encrypts path into a fresh temp file,
// registering the resulting PendingPull under a freshly minted nonce.
func (s *Sender) prepare(ctx context.Context, path string, toChecksum control.Checksum) (*PendingPull, control.RejectionReason, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, control.FileNotFound, nil
		}
		return nil, rejectionOK, lumoerr.E(lumoerr.Invalid, "statting pull source", err)
	}

	guard, err := s.locks.For(path).Read(ctx)
	if err != nil {
		return nil, rejectionOK, lumoerr.E(lumoerr.Unavailable, "acquiring read lock for pull source", err)
	}

	checksum, err := fsindex.ComputeChecksum(path)
	if err != nil {
		guard.Close()
		return nil, rejectionOK, err
	}
	if !matches(toChecksum, checksum) {
		guard.Close()
		return nil, control.FileOutdated, nil
	}

	plain, err := os.ReadFile(path)
	if err != nil {
		guard.Close()
		return nil, rejectionOK, lumoerr.E(lumoerr.Invalid, "reading pull source", err)
	}
	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		guard.Close()
		return nil, rejectionOK, err
	}

	tmpDir := filepath.Join(s.workDir, ".disc", "tmp_downloads")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		guard.Close()
		return nil, rejectionOK, lumoerr.E(lumoerr.Unavailable, "creating pull temp dir", err)
	}
	tempPath := filepath.Join(tmpDir, tempFileName("pull"))
	if err := os.WriteFile(tempPath, sealed, 0o600); err != nil {
		guard.Close()
		return nil, rejectionOK, lumoerr.E(lumoerr.Unavailable, "writing pull temp file", err)
	}

	nonce := randomNonzero64()
	cleanup := func() {
		guard.Close()
		os.Remove(tempPath)
		s.pulls.cancel(nonce)
	}
	job := tasks.NewClaimableJob(s.table, "pull-source:"+path, "awaiting FileSync claim", cleanup)

	pending := &PendingPull{
		Nonce:             nonce,
		OriginalAbsPath:   path,
		TempEncryptedPath: tempPath,
		FileSize:          int64(len(sealed)),
		CreatedAt:         time.Now(),
		Job:               job,
	}
	s.pulls.insert(pending)
	go job.Run(ctx, tasks.TransferClaimTimeout)

	_ = info // already validated to exist; size comes from the encrypted copy
	return pending, rejectionOK, nil
}

// HandleConn drives one inbound TCP connection through the FileSync →
// FileSyncAck → stream sequence for whichever PendingPull its FileSync
// claims. conn is closed by the caller once HandleConn returns.
func (s *Sender) HandleConn(ctx context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)
	sync, err := recvFileSync(r, s.cipher)
	if err != nil {
		lumolog.Info.Printf("transfer: malformed FileSync from %s: %v", conn.RemoteAddr(), err)
		return
	}

	pending, ok := s.pulls.claim(sync.Nonce)
	if !ok {
		lumolog.Info.Printf("transfer: FileSync for unknown/expired nonce from %s", conn.RemoteAddr())
		return
	}
	handle, ok := pending.Job.Claim()
	if !ok {
		// Lost the race to the claim-timeout cleanup; the temp file is
		// already gone.
		return
	}
	handle.SetRunning()

	err = s.stream(conn, r, pending)
	os.Remove(pending.TempEncryptedPath)
	handle.Complete(err)
}

func (s *Sender) stream(conn net.Conn, r *bufio.Reader, pending *PendingPull) error {
	ack := fileSyncAckMsg{Nonce: pending.Nonce, FileSize: pending.FileSize}
	if err := sendFileSyncAck(conn, s.cipher, ack); err != nil {
		return err
	}
	if err := recvFlowControlAck(r); err != nil {
		return err
	}

	f, err := os.Open(pending.TempEncryptedPath)
	if err != nil {
		return lumoerr.E(lumoerr.Invalid, "opening pull temp file", err)
	}
	defer f.Close()

	deadline := time.Now().Add(ioTimeout(TCPWriteBaseTimeout, pending.FileSize))
	conn.SetWriteDeadline(deadline)
	if _, err := io.CopyN(conn, f, pending.FileSize); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "streaming pull source", err)
	}
	return nil
}
