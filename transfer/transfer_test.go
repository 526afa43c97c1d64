package transfer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/fslock"
	"github.com/hahatianx/lumo/tasks"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *aecrypt.Cipher {
	key := sha256.Sum256([]byte("shared connection token"))
	c, err := aecrypt.New(key)
	require.NoError(t, err)
	return c
}

func TestIoTimeoutFloorsAtBase(t *testing.T) {
	require.Equal(t, TCPWriteBaseTimeout, ioTimeout(TCPWriteBaseTimeout, 1024))
}

func TestIoTimeoutScalesWithSize(t *testing.T) {
	got := ioTimeout(time.Second, 50*1024*1024) // 50 MiB at 5 MiB/s floor -> ~10s + 1s
	require.Greater(t, got, 10*time.Second)
}

func TestPullRegistryInsertClaimIsIdempotent(t *testing.T) {
	r := newPullRegistry()
	p := &PendingPull{Nonce: 7}
	r.insert(p)
	require.Equal(t, 1, r.len())

	got, ok := r.claim(7)
	require.True(t, ok)
	require.Same(t, p, got)

	_, ok = r.claim(7)
	require.False(t, ok, "second claim of the same nonce sees nothing")
	require.Equal(t, 0, r.len())
}

func TestDownloadRegistryCancelIsIdempotent(t *testing.T) {
	r := newDownloadRegistry()
	p := &PendingDownload{Challenge: 9}
	r.insert(p)
	r.cancel(9)
	r.cancel(9) // no panic on double cancel
	_, ok := r.claim(9)
	require.False(t, ok)
}

func TestWireChecksumHandlesZeroSumWithoutPanic(t *testing.T) {
	require.NotPanics(t, func() {
		require.Equal(t, uint64(0), WireChecksum(checksum.Sum{}))
	})
}

func TestFrameRoundTrip(t *testing.T) {
	pr, pw := net.Pipe()
	defer pr.Close()
	defer pw.Close()

	go func() {
		require.NoError(t, writeFrame(pw, []byte("hello world")))
	}()

	r := bufio.NewReader(pr)
	payload, err := readFrame(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(payload))
}

func TestFileSyncHandshakeRoundTrip(t *testing.T) {
	cipher := testCipher(t)
	pr, pw := net.Pipe()
	defer pr.Close()
	defer pw.Close()

	go func() {
		require.NoError(t, sendFileSync(pw, cipher, 123))
	}()

	r := bufio.NewReader(pr)
	got, err := recvFileSync(r, cipher)
	require.NoError(t, err)
	require.Equal(t, uint64(123), got.Nonce)
}

// TestSenderReceiverFullTransfer drives a real TCP loopback connection
// through the FileSync -> FileSyncAck -> stream sequence using Sender's
// HandleConn on one end and the handshake helpers directly on the
// other, standing in for Receiver.receiveFile's protocol steps without
// requiring a live UDP control plane.
func TestSenderReceiverFullTransfer(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "shared.txt")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	cipher := testCipher(t)
	table := tasks.NewTable()
	locks := fslock.NewRegistry()
	sender := NewSender(srcDir, "127.0.0.1", cipher, 5*time.Second, table, locks)

	ctx := context.Background()
	pending, reason, err := sender.prepare(ctx, srcPath, control.Any)
	require.NoError(t, err)
	require.Equal(t, rejectionOK, reason)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sender.HandleConn(ctx, conn)
	}()

	conn, err := net.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, sendFileSync(conn, cipher, pending.Nonce))
	r := bufio.NewReader(conn)
	ack, err := recvFileSyncAck(r, cipher)
	require.NoError(t, err)
	require.Equal(t, int64(len(content))+encryptionOverheadForTest(), ack.FileSize)
	require.NoError(t, sendFlowControlAck(conn))

	sealed := make([]byte, ack.FileSize)
	_, err = readFull(r, sealed)
	require.NoError(t, err)

	plain, err := cipher.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, content, plain)

	require.Eventually(t, func() bool {
		summary, ok := table.Get(pending.Job.ID())
		return !ok || summary.Status == tasks.Completed
	}, time.Second, 10*time.Millisecond)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func encryptionOverheadForTest() int64 {
	// 12-byte IV + 16-byte AEAD tag, chacha20poly1305's fixed overhead.
	return 12 + 16
}

