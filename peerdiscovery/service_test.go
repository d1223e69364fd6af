package peerdiscovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectoryMergeKeepsNewerLastSeen(t *testing.T) {
	d := newDirectory()

	isNew := d.merge(DiscoveredPeer{NodeID: "Q", LastSeen: 100})
	require.True(t, isNew)

	isNew = d.merge(DiscoveredPeer{NodeID: "Q", LastSeen: 200})
	require.False(t, isNew)

	isNew = d.merge(DiscoveredPeer{NodeID: "Q", LastSeen: 50})
	require.False(t, isNew)

	snap := d.Snapshot()
	require.Len(t, snap, 1)
	require.EqualValues(t, 200, snap[0].LastSeen)
}

func TestDirectoryTTLEviction(t *testing.T) {
	d := newDirectory()
	d.merge(DiscoveredPeer{NodeID: "Q", LastSeen: 200})

	broadcastInterval := 60 * time.Second
	ttl := 2 * broadcastInterval

	// Exactly at the TTL boundary, the peer survives.
	beforeCutoff := int64(200) + ttl.Milliseconds()
	evicted := d.evictExpired(beforeCutoff, ttl)
	require.Empty(t, evicted)
	require.Len(t, d.Snapshot(), 1)

	// One millisecond past the TTL boundary, the peer is evicted.
	afterCutoff := int64(200) + ttl.Milliseconds() + 1
	evicted = d.evictExpired(afterCutoff, ttl)
	require.Equal(t, []string{"Q"}, evicted)
	require.Empty(t, d.Snapshot())
}

func TestDirectoryEvictionClearsRetryCounter(t *testing.T) {
	d := newDirectory()
	d.merge(DiscoveredPeer{NodeID: "Q", LastSeen: 0})

	d.incrementRetry("Q")
	d.incrementRetry("Q")
	require.Equal(t, 2, d.retryCount("Q"))

	d.evictExpired(1<<40, time.Second)

	require.Equal(t, 0, d.retryCount("Q"))
}

func TestServiceStartIsNoopWithoutEndpoints(t *testing.T) {
	svc := New(Config{Enabled: true})
	require.NoError(t, svc.Start())
	require.Equal(t, StatusStopped, svc.Status())
}

func TestServiceStartIdempotent(t *testing.T) {
	svc := New(Config{
		Enabled:            true,
		DiscoveryEndpoints: []string{"http://127.0.0.1:1"},
		NodeID:             "local",
		BroadcastInterval:  time.Hour,
	})
	require.NoError(t, svc.Start())
	require.Equal(t, StatusRunning, svc.Status())

	// Calling Start again while running must not panic or restart the
	// loop; it logs a warning and returns.
	require.NoError(t, svc.Start())
	require.Equal(t, StatusRunning, svc.Status())

	require.NoError(t, svc.Stop())
	require.Equal(t, StatusStopped, svc.Status())
}
