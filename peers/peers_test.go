package peers_test

import (
	"testing"
	"time"

	"github.com/hahatianx/lumo/peers"
	"github.com/stretchr/testify/require"
)

func TestUpdateGetPromoteRefreshDisable(t *testing.T) {
	table := peers.NewTable()
	table.UpdatePeer(peers.Peer{ID: "p1", Name: "alice", IP: "10.0.0.2", IsActive: true})

	p, ok := table.GetPeer("p1")
	require.True(t, ok)
	require.Equal(t, "alice", p.Name)

	require.NoError(t, table.PromotePeer("p1"))
	p, _ = table.GetPeer("p1")
	require.True(t, p.IsMain)

	require.NoError(t, table.RefreshPeer("p1"))
	require.NoError(t, table.DisablePeer("p1"))

	_, ok = table.GetPeer("p1")
	require.False(t, ok, "disabled peer reads as absent")

	require.Error(t, table.RefreshPeer("p1"), "refreshing a disabled peer is an error")
	require.Error(t, table.PromotePeer("unknown"))
}

func TestRemovePeerErrorsWhenUnknown(t *testing.T) {
	table := peers.NewTable()
	require.Error(t, table.RemovePeer("ghost"))
	table.UpdatePeer(peers.Peer{ID: "p1", IsActive: true})
	require.NoError(t, table.RemovePeer("p1"))
	_, ok := table.GetPeer("p1")
	require.False(t, ok)
}

func TestAntiEntropyDeactivatesExpiredPeers(t *testing.T) {
	table := peers.NewTableWithExpiry(50 * time.Millisecond)
	now := time.Now()
	table.UpdatePeer(peers.Peer{
		ID:                  "stale",
		IsActive:            true,
		LastSeenLocalMillis: now.Add(-time.Second).UnixMilli(),
	})
	table.UpdatePeer(peers.Peer{
		ID:                  "fresh",
		IsActive:            true,
		LastSeenLocalMillis: now.UnixMilli(),
	})

	table.AntiEntropy(now)

	_, ok := table.GetPeer("stale")
	require.False(t, ok)
	_, ok = table.GetPeer("fresh")
	require.True(t, ok)
}

func TestAntiEntropyHonorsTimezoneOffset(t *testing.T) {
	table := peers.NewTableWithExpiry(60 * time.Second)
	now := time.Now()
	// 30s ago in UTC, reported with a +120 minute local offset.
	lastSeenUTC := now.Add(-30 * time.Second)
	offsetMin := 120
	localMs := lastSeenUTC.Add(time.Duration(offsetMin) * time.Minute).UnixMilli()

	table.UpdatePeer(peers.Peer{
		ID:                      "p1",
		IsActive:                true,
		LastSeenLocalMillis:     localMs,
		LastSeenTZOffsetMinutes: offsetMin,
	})

	table.AntiEntropy(now)

	_, ok := table.GetPeer("p1")
	require.True(t, ok, "peer within the expiry window stays active regardless of tz offset")
}
