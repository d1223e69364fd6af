package chainlink_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ilpfi/connectord/chainlink"
	"github.com/stretchr/testify/require"
)

func TestMockChainPortAdoptsExistingChannel(t *testing.T) {
	port := chainlink.NewMockChainPort()
	ctx := context.Background()

	peer := chainlink.Address{0x01}
	token := chainlink.Address{0x02}

	first, err := port.OpenChannel(ctx, peer, token, big.NewInt(1000), time.Minute)
	require.NoError(t, err)

	second, err := port.OpenChannel(ctx, peer, token, big.NewInt(1000), time.Minute)
	require.NoError(t, err)

	require.Equal(t, first, second, "reopening for the same (peer, token) must adopt the existing channel")
	require.Equal(t, 2, port.OpenCallCount())
}

func TestMockChainPortSettlementUpdatesState(t *testing.T) {
	port := chainlink.NewMockChainPort()
	ctx := context.Background()

	peer := chainlink.Address{0x01}
	token := chainlink.Address{0x02}

	channelID, err := port.OpenChannel(ctx, peer, token, big.NewInt(1000), time.Minute)
	require.NoError(t, err)

	_, err = port.SubmitSettlement(ctx, channelID, chainlink.BalanceProof{
		ChannelID:         channelID,
		Nonce:             1,
		TransferredAmount: big.NewInt(500),
		TokenAddress:      token,
		Signature:         []byte("sig"),
	})
	require.NoError(t, err)

	state, err := port.GetChannelState(ctx, channelID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), state.MyNonce)
	require.Equal(t, big.NewInt(500), state.MyTransferred)
}
