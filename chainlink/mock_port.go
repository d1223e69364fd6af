package chainlink

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// MockChainPort is an in-memory ChainPort used by the settlement
// executor's tests. It behaves like a single-node chain with
// instantaneous confirmation: OpenChannel succeeds immediately and
// GetChannelState reflects whatever the test or the executor itself has
// recorded via OpenChannel/SubmitSettlement.
type MockChainPort struct {
	mu sync.Mutex

	// existing maps (peer, token) to an already-open channel, so
	// OpenChannel can exercise the "adopt existing channel" tie-break
	// from spec.md §4.5.
	existing map[[40]byte]ChannelID
	channels map[ChannelID]*ChannelState

	openCalls int

	failNextOpen     error
	failNextSettle   error
	failNextGetState error
}

// NewMockChainPort returns an empty MockChainPort.
func NewMockChainPort() *MockChainPort {
	return &MockChainPort{
		existing: make(map[[40]byte]ChannelID),
		channels: make(map[ChannelID]*ChannelState),
	}
}

func pairKey(peer, token Address) [40]byte {
	var k [40]byte
	copy(k[:20], peer[:])
	copy(k[20:], token[:])
	return k
}

// FailNextOpen makes the next OpenChannel call return err.
func (m *MockChainPort) FailNextOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextOpen = err
}

// FailNextSettle makes the next SubmitSettlement call return err.
func (m *MockChainPort) FailNextSettle(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextSettle = err
}

// OpenCallCount returns how many times OpenChannel has been invoked.
func (m *MockChainPort) OpenCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// SeedExistingChannel pre-registers a channel as already open for
// (peer, token), so a future OpenChannel call adopts it instead of
// minting a new one.
func (m *MockChainPort) SeedExistingChannel(peer, token Address, channelID ChannelID, state ChannelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existing[pairKey(peer, token)] = channelID
	state.ChannelID = channelID
	m.channels[channelID] = &state
}

func (m *MockChainPort) OpenChannel(_ context.Context, peer Address, token Address, initialDeposit *big.Int, timeout time.Duration) (ChannelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	if m.failNextOpen != nil {
		err := m.failNextOpen
		m.failNextOpen = nil
		return ChannelID{}, err
	}

	key := pairKey(peer, token)
	if existing, ok := m.existing[key]; ok {
		return existing, nil
	}

	id := deriveChannelID(peer, token, m.openCalls)
	m.existing[key] = id
	m.channels[id] = &ChannelState{
		ChannelID:         id,
		Status:            StatusOpened,
		MyDeposit:         initialDeposit,
		TheirDeposit:      big.NewInt(0),
		MyTransferred:     big.NewInt(0),
		TheirTransferred:  big.NewInt(0),
		Participants:      [2]Address{{}, peer},
		TokenAddress:      token,
		SettlementTimeout: timeout,
	}

	return id, nil
}

func (m *MockChainPort) GetChannelState(_ context.Context, channelID ChannelID) (ChannelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNextGetState != nil {
		err := m.failNextGetState
		m.failNextGetState = nil
		return ChannelState{}, err
	}

	state, ok := m.channels[channelID]
	if !ok {
		return ChannelState{}, &ChainError{Kind: ErrChainError, Diagnostic: "unknown channel"}
	}
	return *state, nil
}

func (m *MockChainPort) DigestBalanceProof(channelID ChannelID, nonce uint64, transferredAmount *big.Int, token Address) ([]byte, error) {
	h := sha256.New()
	h.Write(channelID[:])
	fmt.Fprintf(h, "%d:%s:", nonce, transferredAmount.String())
	h.Write(token[:])
	return h.Sum(nil), nil
}

func (m *MockChainPort) SubmitSettlement(_ context.Context, channelID ChannelID, proof BalanceProof) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNextSettle != nil {
		err := m.failNextSettle
		m.failNextSettle = nil
		return [32]byte{}, err
	}

	state, ok := m.channels[channelID]
	if !ok {
		return [32]byte{}, &ChainError{Kind: ErrChainError, Diagnostic: "unknown channel"}
	}
	state.MyNonce = proof.Nonce
	state.MyTransferred = proof.TransferredAmount

	var txHash [32]byte
	copy(txHash[:], channelID[:])
	return txHash, nil
}

func deriveChannelID(peer, token Address, seq int) ChannelID {
	h := sha256.New()
	h.Write(peer[:])
	h.Write(token[:])
	fmt.Fprintf(h, ":%d", seq)
	var id ChannelID
	copy(id[:], h.Sum(nil))
	return id
}

var _ ChainPort = (*MockChainPort)(nil)
