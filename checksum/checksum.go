// Package checksum computes and represents the SHA-256 content checksum
// used throughout lumo: a file's checksum_cache fingerprint (spec.md §3),
// the index dump's content checksum (§4.2), and the from/to_checksum
// values negotiated over PULL (§4.7). Every checksum in this system is the
// same fixed hash, so unlike a general-purpose digest package there is no
// algorithm to select or serialize.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Size is the length in bytes of a Sum.
const Size = sha256.Size

// Sum is a SHA-256 checksum. The zero Sum means "no checksum computed
// yet" and is directly comparable with ==.
type Sum [Size]byte

// IsZero reports whether s is the unset checksum.
func (s Sum) IsZero() bool {
	return s == Sum{}
}

// String returns the hex encoding of s, or "<none>" for the zero value.
func (s Sum) String() string {
	if s.IsZero() {
		return "<none>"
	}
	return hex.EncodeToString(s[:])
}

// Truncated returns s's leading 8 bytes as a big-endian uint64, the form
// PULL and PULL_RESPONSE compare over the wire (spec.md §4.6): a cheap
// fingerprint to negotiate freshness, not the full checksum.
func (s Sum) Truncated() uint64 {
	if s.IsZero() {
		return 0
	}
	return binary.BigEndian.Uint64(s[:8])
}

// Writer accumulates a streaming SHA-256 checksum so a file can be hashed
// in fixed-size chunks (spec.md §5's 64 KiB reads) without holding its
// contents in memory at once.
type Writer struct {
	h hash.Hash
}

// NewWriter returns a ready-to-use Writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

// Write feeds p into the running checksum. It never returns an error.
func (w *Writer) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the checksum of everything written so far. It does not
// reset the Writer's state.
func (w *Writer) Sum() Sum {
	var s Sum
	copy(s[:], w.h.Sum(nil))
	return s
}
