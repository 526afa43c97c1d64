package transfer

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/hahatianx/lumo/lumoerr"
)

var frameTrailer = [2]byte{'\r', '\n'}

// writeFrame writes a length-prefixed frame over the TCP data plane: an
// 8-byte big-endian length, the payload, then the CRLF trailer that
// marks the end of the control exchange (spec.md §6: "the control
// exchange trailer is CRLF") before the length-bounded file copy
// begins.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "writing frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "writing frame payload", err)
	}
	if _, err := w.Write(frameTrailer[:]); err != nil {
		return lumoerr.E(lumoerr.Unavailable, "writing frame trailer", err)
	}
	return nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "reading frame header", err)
	}
	n := binary.BigEndian.Uint64(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "reading frame payload", err)
	}
	var trailer [2]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, lumoerr.E(lumoerr.Unavailable, "reading frame trailer", err)
	}
	if trailer != frameTrailer {
		return nil, lumoerr.E(lumoerr.Invalid, "frame missing CRLF trailer")
	}
	return payload, nil
}
