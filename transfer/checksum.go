package transfer

import (
	"github.com/hahatianx/lumo/checksum"
	"github.com/hahatianx/lumo/control"
)

// WireChecksum truncates a full content checksum to the 64-bit value
// PULL/PULL_RESPONSE compare over the wire. The full checksum stays the
// source of truth in the local index; the wire only needs a cheap
// fingerprint to negotiate freshness.
func WireChecksum(s checksum.Sum) uint64 {
	return s.Truncated()
}

// matches reports whether a wire checksum expectation is satisfied by an
// observed checksum: Any always matches, Expected requires an exact
// truncated-checksum equality.
func matches(expect control.Checksum, observed checksum.Sum) bool {
	if !expect.HasValue {
		return true
	}
	return expect.Value == WireChecksum(observed)
}
