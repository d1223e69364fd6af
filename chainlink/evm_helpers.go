package chainlink

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// sendTransaction signs and broadcasts a transaction against the
// registry contract carrying value and calldata, using the adapter's
// operator key.
func (a *EVMAdapter) sendTransaction(ctx context.Context, calldata []byte, value *big.Int) (*types.Transaction, error) {
	from := crypto.PubkeyToAddress(a.signerKey.PublicKey)

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}

	gasTipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	msg := ethereum.CallMsg{
		From:      from,
		To:        &a.registryAddress,
		Value:     value,
		Data:      calldata,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
	}
	gasLimit, err := a.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, &ChainError{Kind: ErrInsufficientFunds, Diagnostic: err.Error()}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &a.registryAddress,
		Value:     value,
		Data:      calldata,
	})

	signer := types.LatestSignerForChainID(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.signerKey)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}

	return signedTx, nil
}

// waitMined polls for a transaction receipt until it is available and its
// block is a.retry.Confirmations deep (counting the inclusion block), or
// ctx is cancelled, reporting ErrTimeout if the deadline fires first.
func (a *EVMAdapter) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt.BlockNumber != nil {
			head, headErr := a.client.BlockNumber(ctx)
			if headErr == nil && head+1 >= receipt.BlockNumber.Uint64()+a.retry.Confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, &ChainError{Kind: ErrTimeout, Diagnostic: "waiting for confirmation"}
		case <-ticker.C:
		}
	}
}

// channelIDFromReceipt extracts the channel id from the openChannel
// transaction's first emitted topic, the conventional place a
// registry contract would echo a bytes32 return value as an indexed
// event argument.
func channelIDFromReceipt(receipt *types.Receipt) ChannelID {
	var id ChannelID
	if len(receipt.Logs) == 0 || len(receipt.Logs[0].Topics) == 0 {
		return id
	}
	copy(id[:], receipt.Logs[0].Topics[0].Bytes())
	return id
}

// decodeChannelState maps the unpacked "channels" call outputs onto
// ChannelState, in the field order declared by channelRegistryABI.
func decodeChannelState(channelID ChannelID, unpacked []interface{}) (ChannelState, error) {
	if len(unpacked) != 11 {
		return ChannelState{}, &ChainError{
			Kind:       ErrChainError,
			Diagnostic: "unexpected channel state arity",
		}
	}

	status, _ := unpacked[0].(uint8)
	participantA, _ := unpacked[7].(common.Address)
	participantB, _ := unpacked[8].(common.Address)
	token, _ := unpacked[9].(common.Address)
	timeoutSeconds, _ := unpacked[10].(*big.Int)

	return ChannelState{
		ChannelID:         channelID,
		Status:            ChannelStatus(status),
		MyDeposit:         unpacked[1].(*big.Int),
		TheirDeposit:      unpacked[2].(*big.Int),
		MyNonce:           unpacked[3].(uint64),
		TheirNonce:        unpacked[4].(uint64),
		MyTransferred:     unpacked[5].(*big.Int),
		TheirTransferred:  unpacked[6].(*big.Int),
		Participants:      [2]Address{Address(participantA), Address(participantB)},
		TokenAddress:      Address(token),
		SettlementTimeout: time.Duration(timeoutSeconds.Int64()) * time.Second,
	}, nil
}

// ethereumCallMsg builds a read-only eth_call message against the
// registry contract.
func ethereumCallMsg(to common.Address, calldata []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: calldata}
}
