package peers

import (
	"sync"
	"time"

	"github.com/hahatianx/lumo/lumoerr"
)

// DefaultExpiry is the anti-entropy liveness window: a peer not refreshed
// within this window is deactivated.
const DefaultExpiry = 60 * time.Second

// Table is the process-wide peer map. Liveness is driven by an explicit
// anti-entropy pass rather than per-Get lazy expiry, since peers carry
// richer state (is_main, is_active) than a bare cached value would.
type Table struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	expiry time.Duration
}

// NewTable returns an empty peer table using DefaultExpiry.
func NewTable() *Table {
	return &Table{peers: make(map[string]*Peer), expiry: DefaultExpiry}
}

// NewTableWithExpiry returns an empty peer table using a custom liveness
// window, for tests that need to force anti-entropy deterministically.
func NewTableWithExpiry(expiry time.Duration) *Table {
	return &Table{peers: make(map[string]*Peer), expiry: expiry}
}

// UpdatePeer upserts a peer record, replacing any existing entry wholesale.
func (t *Table) UpdatePeer(p Peer) {
	cp := p
	t.mu.Lock()
	t.peers[p.ID] = &cp
	t.mu.Unlock()
}

// RemovePeer deletes a peer outright. It errors if the peer is unknown.
func (t *Table) RemovePeer(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[id]; !ok {
		return lumoerr.E(lumoerr.NotExist, "peer does not exist: "+id)
	}
	delete(t.peers, id)
	return nil
}

// GetPeer returns an active peer's current snapshot. Inactive or unknown
// peers return ok=false, matching the original's "inactive reads as
// absent" behavior.
func (t *Table) GetPeer(id string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok || !p.IsActive {
		return Peer{}, false
	}
	return *p, true
}

// PromotePeer marks an active peer as the main node.
func (t *Table) PromotePeer(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return lumoerr.E(lumoerr.NotExist, "peer does not exist: "+id)
	}
	if !p.IsActive {
		return lumoerr.E(lumoerr.Precondition, "peer is inactive: "+id)
	}
	p.IsMain = true
	return nil
}

// RefreshPeer touches an active peer's last-seen stamp to now, in UTC
// (offset 0), matching the original's refresh_peer behavior.
func (t *Table) RefreshPeer(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return lumoerr.E(lumoerr.NotExist, "peer does not exist: "+id)
	}
	if !p.IsActive {
		return lumoerr.E(lumoerr.Precondition, "peer is inactive: "+id)
	}
	p.LastSeenLocalMillis = time.Now().UnixMilli()
	p.LastSeenTZOffsetMinutes = 0
	return nil
}

// DisablePeer marks an active peer inactive.
func (t *Table) DisablePeer(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return lumoerr.E(lumoerr.NotExist, "peer does not exist: "+id)
	}
	if !p.IsActive {
		return lumoerr.E(lumoerr.Precondition, "peer is inactive: "+id)
	}
	p.IsActive = false
	return nil
}

// GetPeers returns a snapshot of every peer, active or not.
func (t *Table) GetPeers() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}
