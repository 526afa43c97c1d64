package transfer

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// randomNonzero64 derives a non-zero uint64 from a fresh random UUID, used
// for PULL nonces and PullFile challenges.
func randomNonzero64() uint64 {
	for {
		id := uuid.New()
		if v := binary.BigEndian.Uint64(id[:8]); v != 0 {
			return v
		}
	}
}

// tempFileName returns a fresh temp-file leaf name for an in-flight
// transfer, keyed by a random UUID rather than the nonce/challenge so a
// retried transfer never collides with a stale leftover under the same
// name.
func tempFileName(prefix string) string {
	return prefix + "-" + uuid.New().String()
}
