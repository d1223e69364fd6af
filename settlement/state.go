package settlement

import (
	"math/big"
	"sync"

	"github.com/ilpfi/connectord/chainlink"
)

// SettlementRequired is the event contract consumed from the upstream
// balance monitor, per spec.md §6. currentBalance is the increment owed
// since the last settlement, not an absolute replacement.
type SettlementRequired struct {
	PeerID         string
	TokenID        string
	CurrentBalance *big.Int
	Threshold      *big.Int
	Timestamp      int64 // epoch milliseconds
}

// channelRuntime is the executor's own-side cache for one channel:
// exclusively mutated by the settlement package (spec.md §3's ownership
// summary), read only through snapshot getters.
type channelRuntime struct {
	channelID chainlink.ChannelID
	myNonce   uint64
	myTransferred *big.Int
}

// peerChannelMap is PeerChannelMap from spec.md §3: peerId -> channel id,
// one channel per (peer, token) pair, exclusively owned by the executor.
type peerChannelMap struct {
	mu       sync.RWMutex
	channels map[string]*channelRuntime
}

func newPeerChannelMap() *peerChannelMap {
	return &peerChannelMap{channels: make(map[string]*channelRuntime)}
}

func (m *peerChannelMap) get(peerID string) (*channelRuntime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.channels[peerID]
	return rt, ok
}

func (m *peerChannelMap) set(peerID string, rt *channelRuntime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[peerID] = rt
}

// Snapshot returns a read-only copy of peerId -> channelId, for
// telemetry/observation consumers per spec.md §5's "owner's getter may
// snapshot" rule.
func (m *peerChannelMap) Snapshot() map[string]chainlink.ChannelID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]chainlink.ChannelID, len(m.channels))
	for peerID, rt := range m.channels {
		if rt == nil {
			continue
		}
		out[peerID] = rt.channelID
	}
	return out
}

// signedProofLog is SignedProofLog from spec.md §3: channel id -> ordered
// sequence of BalanceProof, append-only within a session.
type signedProofLog struct {
	mu  sync.RWMutex
	log map[chainlink.ChannelID][]chainlink.BalanceProof
}

func newSignedProofLog() *signedProofLog {
	return &signedProofLog{log: make(map[chainlink.ChannelID][]chainlink.BalanceProof)}
}

func (l *signedProofLog) append(channelID chainlink.ChannelID, proof chainlink.BalanceProof) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log[channelID] = append(l.log[channelID], proof)
}

// Proofs returns a read-only copy of the proof sequence for channelID.
func (l *signedProofLog) Proofs(channelID chainlink.ChannelID) []chainlink.BalanceProof {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.log[channelID]
	out := make([]chainlink.BalanceProof, len(src))
	copy(out, src)
	return out
}
