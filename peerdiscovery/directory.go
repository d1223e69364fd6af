// Package peerdiscovery implements C6: a periodic announce/fetch/cleanup
// loop that maintains a soft-state directory of reachable peers and
// drives bounded connection retries against a pluggable transport
// callback.
package peerdiscovery

import (
	"sync"
	"time"
)

// DiscoveredPeer mirrors spec.md §3's soft-state peer record.
type DiscoveredPeer struct {
	NodeID       string
	BTPEndpoint  string
	ILPAddress   string
	Capabilities []string
	Version      string
	LastSeen     int64 // ms since epoch
}

// directory is the exclusively C6-owned DiscoveredPeer set plus the
// connection-retry bookkeeping that rides alongside it, per spec.md §5's
// ownership rule ("owner's getter may snapshot").
type directory struct {
	mu sync.RWMutex

	peers             map[string]DiscoveredPeer
	connectedPeers    map[string]struct{}
	connectionRetries map[string]int
}

func newDirectory() *directory {
	return &directory{
		peers:             make(map[string]DiscoveredPeer),
		connectedPeers:    make(map[string]struct{}),
		connectionRetries: make(map[string]int),
	}
}

// merge folds peer into the directory, keeping whichever record (the
// existing one or the incoming one) carries the newer lastSeen, per
// spec.md §4.6's merge rule. Returns true if peer is new to the
// directory (nodeId not previously known).
func (d *directory) merge(peer DiscoveredPeer) (isNew bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.peers[peer.NodeID]
	if !ok {
		d.peers[peer.NodeID] = peer
		return true
	}

	if peer.LastSeen > existing.LastSeen {
		d.peers[peer.NodeID] = peer
	}
	return false
}

// evictExpired removes every peer whose lastSeen predates
// now-ttl, clearing its connection-retry counter as spec.md §4.6
// requires, and returns the evicted nodeIds.
func (d *directory) evictExpired(now int64, ttl time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var evicted []string
	cutoff := now - ttl.Milliseconds()

	for nodeID, peer := range d.peers {
		if peer.LastSeen < cutoff {
			delete(d.peers, nodeID)
			delete(d.connectionRetries, nodeID)
			delete(d.connectedPeers, nodeID)
			evicted = append(evicted, nodeID)
		}
	}
	return evicted
}

// Snapshot returns a read-only copy of the current directory contents.
func (d *directory) Snapshot() []DiscoveredPeer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DiscoveredPeer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

func (d *directory) markConnected(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectedPeers[nodeID] = struct{}{}
	delete(d.connectionRetries, nodeID)
}

func (d *directory) incrementRetry(nodeID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectionRetries[nodeID]++
	return d.connectionRetries[nodeID]
}

func (d *directory) retryCount(nodeID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectionRetries[nodeID]
}

func (d *directory) allNodeIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.peers))
	for id := range d.peers {
		ids = append(ids, id)
	}
	return ids
}
