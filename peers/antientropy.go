package peers

import "time"

// snapshotActive returns every currently active peer, taken under the
// table read lock and released before any validity check runs.
func (t *Table) snapshotActive() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// AntiEntropy snapshots active peers under the table's read lock, then
// for each checks validity outside the lock (the same shape as
// fsindex's maintenance loops: never await — or here, never hold a lock
// across — a per-item validity check), deactivating any peer whose
// last-seen instant has fallen outside the expiry window.
func (t *Table) AntiEntropy(now time.Time) {
	for _, p := range t.snapshotActive() {
		if now.After(p.validUntil(t.expiry)) {
			t.DisablePeer(p.ID)
		}
	}
}
