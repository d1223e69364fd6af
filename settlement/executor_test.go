package settlement

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ilpfi/connectord/accounting"
	"github.com/ilpfi/connectord/chainlink"
	"github.com/ilpfi/connectord/keysign"
	"github.com/ilpfi/connectord/telemetry"
)

func testAddress(b byte) chainlink.Address {
	var a chainlink.Address
	a[19] = b
	return a
}

func newTestExecutor(t *testing.T, peerID string, peerAddr chainlink.Address) (*Executor, *chainlink.MockChainPort, *keysign.MockBackend, *accounting.InMemoryLedger, *eventRecorder) {
	t.Helper()

	chain := chainlink.NewMockChainPort()
	signer := keysign.NewMockBackend()
	ledger := accounting.NewInMemoryLedger()
	rec := newEventRecorder()

	cfg := Config{
		Enabled:                  true,
		SettlementTokenAddress:   testAddress(0xAA),
		DefaultInitialDeposit:    big.NewInt(1_000_000),
		DefaultSettlementTimeout: time.Hour,
		RetryAttempts:            3,
		RetryDelay:               time.Millisecond,
		MinSettlementAmount:      big.NewInt(0),
		PeerAddressMap:           map[string]chainlink.Address{peerID: peerAddr},
		NodeID:                   "local-node",
		SigningKeyID:             "settlement-key",
		Chain:                    chain,
		Signer:                   signer,
		Ledger:                   ledger,
		Telemetry:                rec,
	}

	exec, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, exec.Start())

	return exec, chain, signer, ledger, rec
}

// eventRecorder is a telemetry.Sink that records every emitted event for
// assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{}
}

func (r *eventRecorder) Emit(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) countKind(k telemetry.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

func TestColdSettlementOpensChannelAndSignsFirstProof(t *testing.T) {
	const peerID = "peer-cold"
	exec, chain, signer, ledger, rec := newTestExecutor(t, peerID, testAddress(0x01))
	defer exec.Stop()

	ctx := context.Background()
	err := exec.HandleEvent(ctx, SettlementRequired{
		PeerID:         peerID,
		TokenID:        "usdc",
		CurrentBalance: big.NewInt(1000),
		Threshold:      big.NewInt(1000),
		Timestamp:      1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return signer.SignCallCount() == 1
	}, time.Second, time.Millisecond)

	channels := exec.PeerChannels()
	channelID, ok := channels[peerID]
	require.True(t, ok)

	proofs := exec.Proofs(channelID)
	require.Len(t, proofs, 1)
	require.EqualValues(t, 1, proofs[0].Nonce)
	require.Equal(t, big.NewInt(1000), proofs[0].TransferredAmount)

	require.Equal(t, 1, chain.OpenCallCount())

	balances, err := ledger.GetBalances(ctx, peerID)
	require.NoError(t, err)
	require.Equal(t, 0, balances.CreditBalance.Cmp(big.NewInt(1000)))

	require.Eventually(t, func() bool {
		return rec.countKind(telemetry.KindSettlementCompleted) == 1
	}, time.Second, time.Millisecond)
}

func TestWarmSettlementReusesChannelAndAdvancesNonce(t *testing.T) {
	const peerID = "peer-warm"
	exec, chain, _, ledger, _ := newTestExecutor(t, peerID, testAddress(0x02))
	defer exec.Stop()

	ctx := context.Background()

	require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
		PeerID: peerID, TokenID: "usdc", CurrentBalance: big.NewInt(1000), Timestamp: 1,
	}))

	var channelID chainlink.ChannelID
	require.Eventually(t, func() bool {
		channels := exec.PeerChannels()
		id, ok := channels[peerID]
		if !ok {
			return false
		}
		channelID = id
		return len(exec.Proofs(channelID)) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
		PeerID: peerID, TokenID: "usdc", CurrentBalance: big.NewInt(300), Timestamp: 2,
	}))

	require.Eventually(t, func() bool {
		return len(exec.Proofs(channelID)) == 2
	}, time.Second, time.Millisecond)

	proofs := exec.Proofs(channelID)
	require.EqualValues(t, 2, proofs[1].Nonce)
	require.Equal(t, big.NewInt(1300), proofs[1].TransferredAmount)

	require.Equal(t, 1, chain.OpenCallCount())

	balances, err := ledger.GetBalances(ctx, peerID)
	require.NoError(t, err)
	require.Equal(t, 0, balances.CreditBalance.Cmp(big.NewInt(1300)))
}

func TestSamePeerEventsAreProcessedFIFO(t *testing.T) {
	const peerID = "peer-fifo"
	exec, _, _, _, _ := newTestExecutor(t, peerID, testAddress(0x03))
	defer exec.Stop()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
			PeerID: peerID, TokenID: "usdc", CurrentBalance: big.NewInt(int64(i * 100)), Timestamp: int64(i),
		}))
	}

	var channelID chainlink.ChannelID
	require.Eventually(t, func() bool {
		channels := exec.PeerChannels()
		id, ok := channels[peerID]
		if !ok {
			return false
		}
		channelID = id
		return len(exec.Proofs(channelID)) == 5
	}, 2*time.Second, time.Millisecond)

	proofs := exec.Proofs(channelID)
	for i, p := range proofs {
		require.EqualValues(t, i+1, p.Nonce)
	}
	require.Equal(t, big.NewInt(1500), proofs[4].TransferredAmount)
}

func TestUnknownPeerFailsWithoutRetry(t *testing.T) {
	exec, chain, _, _, rec := newTestExecutor(t, "known-peer", testAddress(0x04))
	defer exec.Stop()

	ctx := context.Background()
	require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
		PeerID: "stranger", TokenID: "usdc", CurrentBalance: big.NewInt(500), Timestamp: 1,
	}))

	require.Eventually(t, func() bool {
		return rec.countKind(telemetry.KindSettlementFailed) == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, 0, chain.OpenCallCount())
}

func TestBelowMinimumBalanceIsDroppedSilently(t *testing.T) {
	const peerID = "peer-min"
	chain := chainlink.NewMockChainPort()
	signer := keysign.NewMockBackend()
	ledger := accounting.NewInMemoryLedger()
	rec := newEventRecorder()

	cfg := Config{
		Enabled:                true,
		SettlementTokenAddress: testAddress(0xAA),
		DefaultInitialDeposit:  big.NewInt(1000),
		RetryAttempts:          1,
		MinSettlementAmount:    big.NewInt(100),
		PeerAddressMap:         map[string]chainlink.Address{peerID: testAddress(0x05)},
		SigningKeyID:           "k",
		Chain:                  chain,
		Signer:                 signer,
		Ledger:                 ledger,
		Telemetry:              rec,
	}
	exec, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, exec.Start())
	defer exec.Stop()

	ctx := context.Background()
	require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
		PeerID: peerID, TokenID: "usdc", CurrentBalance: big.NewInt(50), Timestamp: 1,
	}))

	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 0, chain.OpenCallCount())
	require.Equal(t, 0, signer.SignCallCount())
	require.Equal(t, 0, rec.countKind(telemetry.KindSettlementTriggered))
}

func TestRetryExhaustionEmitsSettlementFailed(t *testing.T) {
	const peerID = "peer-retry"
	exec, _, signer, _, rec := newTestExecutor(t, peerID, testAddress(0x06))
	defer exec.Stop()

	signer.FailNextSignCalls(10, &keysign.BackendError{Kind: keysign.ErrBackendUnavailable, Diagnostic: "down"})

	ctx := context.Background()
	require.NoError(t, exec.HandleEvent(ctx, SettlementRequired{
		PeerID: peerID, TokenID: "usdc", CurrentBalance: big.NewInt(500), Timestamp: 1,
	}))

	require.Eventually(t, func() bool {
		return rec.countKind(telemetry.KindSettlementFailed) == 1
	}, time.Second, time.Millisecond)

	require.GreaterOrEqual(t, signer.SignCallCount(), 3)
	require.Equal(t, 0, rec.countKind(telemetry.KindSettlementCompleted))
}
