package transfer

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/fsindex"
	"github.com/hahatianx/lumo/fslock"
	"github.com/hahatianx/lumo/lumoerr"
	"github.com/hahatianx/lumo/tasks"
)

// Receiver is the client side of the pull protocol (spec.md §4.7.2): it
// registers a PendingDownload under a fresh challenge, sends the PULL,
// and — once a PULL_RESPONSE claims the waiting ClaimableJob — drives
// the TCP leg that actually streams the file.
type Receiver struct {
	workDir string
	selfIP  string
	cipher  *aecrypt.Cipher
	tcpPort int

	table     *tasks.Table
	locks     *fslock.Registry
	downloads *downloadRegistry
	control   *control.Conn
}

// NewReceiver builds a Receiver rooted at workDir, sending PULLs over
// conn and dialing peers on tcpPort for the data leg.
func NewReceiver(workDir, selfIP string, cipher *aecrypt.Cipher, tcpPort int, table *tasks.Table, locks *fslock.Registry, conn *control.Conn) *Receiver {
	return &Receiver{
		workDir:   workDir,
		selfIP:    selfIP,
		cipher:    cipher,
		tcpPort:   tcpPort,
		table:     table,
		locks:     locks,
		downloads: newDownloadRegistry(),
		control:   conn,
	}
}

// PullFile requests path from peerIP, blocking until the transfer
// completes, is rejected, or the claim/transfer deadline elapses.
func (rc *Receiver) PullFile(ctx context.Context, peerIP, path, targetAbsPath string, fromChecksum, toChecksum control.Checksum) error {
	challenge := randomNonzero64()
	decisionCh := make(chan control.PullDecision, 1)

	cleanup := func() {
		rc.downloads.cancel(challenge)
		close(decisionCh)
	}
	job := tasks.NewClaimableJob(rc.table, "pull:"+path, "awaiting PULL_RESPONSE", cleanup)
	pending := &PendingDownload{
		Challenge:     challenge,
		TargetAbsPath: targetAbsPath,
		FromChecksum:  fromChecksum,
		ToChecksum:    toChecksum,
		CreatedAt:     time.Now(),
		Job:           job,
		decisionCh:    decisionCh,
	}
	rc.downloads.insert(pending)
	go job.Run(ctx, tasks.TransferClaimTimeout)

	msg := control.Pull{
		FromIP: rc.selfIP,
		Request: control.PullRequest{
			FromIP:    rc.selfIP,
			Path:      path,
			Checksum:  toChecksum,
			Challenge: challenge,
			Timestamp: time.Now(),
		},
	}
	payload, err := msg.Encode(rc.cipher)
	if err != nil {
		return err
	}
	if err := rc.control.Send(ctx, peerIP, payload); err != nil {
		return err
	}

	select {
	case decision, ok := <-decisionCh:
		if !ok {
			return lumoerr.E(lumoerr.Timeout, "pull claim deadline elapsed")
		}
		return rc.onDecision(ctx, peerIP, pending, decision)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandlePullResponse matches an inbound PULL_RESPONSE to its
// PendingDownload by challenge and, if the download's ClaimableJob is
// still unclaimed, hands the decision to whichever PullFile call is
// waiting on it.
func (rc *Receiver) HandlePullResponse(resp control.PullResponse) {
	pending, ok := rc.downloads.claim(resp.Decision.Challenge)
	if !ok {
		return
	}
	handle, ok := pending.Job.Claim()
	if !ok {
		return
	}
	handle.SetRunning()
	pending.decisionCh <- resp.Decision
}

func (rc *Receiver) onDecision(ctx context.Context, peerIP string, pending *PendingDownload, decision control.PullDecision) error {
	if !decision.Accepted {
		return lumoerr.E(lumoerr.Invalid, "pull rejected, reason "+strconv.Itoa(int(decision.Reason)))
	}
	return rc.receiveFile(ctx, peerIP, pending, decision.Nonce)
}

func (rc *Receiver) receiveFile(ctx context.Context, peerIP string, pending *PendingDownload, nonce uint64) error {
	dialer := net.Dialer{Timeout: TCPConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(peerIP, strconv.Itoa(rc.tcpPort)))
	if err != nil {
		return lumoerr.E(lumoerr.Unavailable, "dialing pull peer", err)
	}
	defer conn.Close()

	if err := sendFileSync(conn, rc.cipher, nonce); err != nil {
		return err
	}
	r := bufio.NewReader(conn)
	ack, err := recvFileSyncAck(r, rc.cipher)
	if err != nil {
		return err
	}
	if err := sendFlowControlAck(conn); err != nil {
		return err
	}

	tmpDir := filepath.Join(rc.workDir, ".disc", "tmp_downloads")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "creating download temp dir", err)
	}
	encPath := filepath.Join(tmpDir, tempFileName("download-enc"))
	defer os.Remove(encPath)

	encFile, err := os.Create(encPath)
	if err != nil {
		return lumoerr.E(lumoerr.Unavailable, "creating encrypted temp file", err)
	}
	deadline := time.Now().Add(ioTimeout(TCPReadBaseTimeout, ack.FileSize))
	conn.SetReadDeadline(deadline)
	_, err = io.CopyN(encFile, r, ack.FileSize)
	encFile.Close()
	if err != nil {
		return lumoerr.E(lumoerr.Unavailable, "streaming pull download", err)
	}

	sealed, err := os.ReadFile(encPath)
	if err != nil {
		return lumoerr.E(lumoerr.Invalid, "reading encrypted temp file", err)
	}
	plain, err := rc.cipher.Open(sealed)
	if err != nil {
		return lumoerr.E(lumoerr.Auth, "decrypting pull download", err)
	}

	decPath := filepath.Join(tmpDir, tempFileName("download-dec"))
	if err := os.WriteFile(decPath, plain, 0o600); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "writing decrypted temp file", err)
	}

	if pending.FromChecksum.HasValue {
		guard, err := rc.locks.For(pending.TargetAbsPath).Write(ctx)
		if err != nil {
			os.Remove(decPath)
			return lumoerr.E(lumoerr.Unavailable, "acquiring write lock on pull target", err)
		}
		defer guard.Close()

		current, err := fsindex.ComputeChecksum(pending.TargetAbsPath)
		if err != nil && !lumoerr.Is(lumoerr.NotExist, err) {
			os.Remove(decPath)
			return err
		}
		if !matches(pending.FromChecksum, current) {
			os.Remove(decPath)
			return lumoerr.E(lumoerr.Precondition, "from_checksum mismatch on pull target")
		}
		return os.Rename(decPath, pending.TargetAbsPath)
	}

	return os.Rename(decPath, pending.TargetAbsPath)
}
