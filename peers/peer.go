// Package peers maintains the daemon's view of other nodes sharing the
// working directory: a liveness-tracked table plus a periodic
// anti-entropy pass that deactivates peers that have gone quiet.
package peers

import "time"

// Peer is one remote node's last-known identity and liveness state.
//
// LastSeenLocalMillis is the peer's own wall-clock reading (milliseconds
// since epoch, in whatever local timezone it reported), not UTC; the
// anti-entropy pass converts it to UTC via LastSeenTZOffsetMinutes (the
// peer's minutes east of UTC) before comparing against this node's clock.
type Peer struct {
	ID       string
	Name     string
	IP       string
	IsMain   bool
	IsActive bool

	LastSeenLocalMillis    int64
	LastSeenTZOffsetMinutes int
}

// lastSeenUTC reconstructs the peer's last-seen instant in this node's
// UTC clock: local = utc + offset, so utc = local - offset.
func (p Peer) lastSeenUTC() time.Time {
	localMs := time.UnixMilli(p.LastSeenLocalMillis)
	return localMs.Add(-time.Duration(p.LastSeenTZOffsetMinutes) * time.Minute)
}

// validUntil returns the instant after which the peer is considered
// expired, given an expiry window.
func (p Peer) validUntil(expiry time.Duration) time.Time {
	return p.lastSeenUTC().Add(expiry)
}
