package transfer

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"io"
	"time"

	"github.com/hahatianx/lumo/aecrypt"
	"github.com/hahatianx/lumo/control"
	"github.com/hahatianx/lumo/lumoerr"
)

// fileSyncMsg is the receiver's claim of a PendingPull by nonce, sent as
// the first thing on the freshly-opened TCP connection.
type fileSyncMsg struct {
	Nonce     uint64
	Timestamp time.Time
}

// fileSyncAckMsg is the sender's reply: the file the receiver is about
// to stream, its size, and (when the receiver asked for one) the
// checksum it should end up with.
type fileSyncAckMsg struct {
	Nonce     uint64
	Checksum  control.Checksum
	Timestamp time.Time
	FileSize  int64
}

func init() {
	gob.Register(fileSyncMsg{})
	gob.Register(fileSyncAckMsg{})
}

func sendFileSync(w io.Writer, cipher *aecrypt.Cipher, nonce uint64) error {
	plain, err := gobEncode(fileSyncMsg{Nonce: nonce, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	sealed, err := cipher.Seal(plain)
	if err != nil {
		return err
	}
	return writeFrame(w, sealed)
}

func recvFileSync(r *bufio.Reader, cipher *aecrypt.Cipher) (fileSyncMsg, error) {
	sealed, err := readFrame(r)
	if err != nil {
		return fileSyncMsg{}, err
	}
	plain, err := cipher.Open(sealed)
	if err != nil {
		return fileSyncMsg{}, err
	}
	var m fileSyncMsg
	if err := gobDecode(plain, &m); err != nil {
		return fileSyncMsg{}, err
	}
	return m, nil
}

func sendFileSyncAck(w io.Writer, cipher *aecrypt.Cipher, ack fileSyncAckMsg) error {
	ack.Timestamp = time.Now()
	plain, err := gobEncode(ack)
	if err != nil {
		return err
	}
	sealed, err := cipher.Seal(plain)
	if err != nil {
		return err
	}
	return writeFrame(w, sealed)
}

func recvFileSyncAck(r *bufio.Reader, cipher *aecrypt.Cipher) (fileSyncAckMsg, error) {
	sealed, err := readFrame(r)
	if err != nil {
		return fileSyncAckMsg{}, err
	}
	plain, err := cipher.Open(sealed)
	if err != nil {
		return fileSyncAckMsg{}, err
	}
	var m fileSyncAckMsg
	if err := gobDecode(plain, &m); err != nil {
		return fileSyncAckMsg{}, err
	}
	return m, nil
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, lumoerr.E(lumoerr.Invalid, "encoding handshake message", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return lumoerr.E(lumoerr.Invalid, "decoding handshake message", err)
	}
	return nil
}

// flowControlAck is the single byte the receiver writes once it has
// read the FileSyncAck and is ready for the sender to start streaming
// the encrypted file (spec.md §4.7.2's "send 0 bytes (flow-control
// ack)").
const flowControlAck = byte(0)

func sendFlowControlAck(w io.Writer) error {
	_, err := w.Write([]byte{flowControlAck})
	if err != nil {
		return lumoerr.E(lumoerr.Unavailable, "writing flow-control ack", err)
	}
	return nil
}

func recvFlowControlAck(r io.Reader) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "reading flow-control ack", err)
	}
	return nil
}
