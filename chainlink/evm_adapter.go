package chainlink

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// channelRegistryABI is the minimal ABI surface the adapter calls against
// a channel-registry contract: opening a channel and reading its packed
// state. The verifier's actual ABI is out of scope (spec.md Non-goals:
// on-chain contract implementation); this is the shape the adapter
// expects a deployment to provide.
const channelRegistryABI = `[
	{"type":"function","name":"openChannel","stateMutability":"payable",
	 "inputs":[{"name":"peer","type":"address"},{"name":"token","type":"address"},
	 {"name":"timeout","type":"uint256"}],
	 "outputs":[{"name":"channelId","type":"bytes32"}]},
	{"type":"function","name":"channels","stateMutability":"view",
	 "inputs":[{"name":"channelId","type":"bytes32"}],
	 "outputs":[
		{"name":"status","type":"uint8"},
		{"name":"myDeposit","type":"uint256"},
		{"name":"theirDeposit","type":"uint256"},
		{"name":"myNonce","type":"uint64"},
		{"name":"theirNonce","type":"uint64"},
		{"name":"myTransferred","type":"uint256"},
		{"name":"theirTransferred","type":"uint256"},
		{"name":"participantA","type":"address"},
		{"name":"participantB","type":"address"},
		{"name":"token","type":"address"},
		{"name":"settlementTimeout","type":"uint256"}]},
	{"type":"function","name":"submitSettlement","stateMutability":"nonpayable",
	 "inputs":[{"name":"channelId","type":"bytes32"},{"name":"nonce","type":"uint64"},
	 {"name":"transferredAmount","type":"uint256"},{"name":"signature","type":"bytes"}],
	 "outputs":[]}
]`

// RetryConfig bounds the adapter's own RPC retry behaviour. This is
// configuration of the chain adapter, not of the settlement executor
// (spec.md §4.3): the executor's own retry budget governs whether to
// re-invoke ChainPort methods at all; this governs how persistent a
// single invocation is against transient RPC blips.
type RetryConfig struct {
	Attempts   uint
	DelayMs    int
	Confirmations uint64
}

// DefaultRetryConfig matches the defaults most EVM JSON-RPC providers
// tolerate without rate-limiting a well-behaved client.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 5, DelayMs: 500, Confirmations: 1}
}

// EVMAdapter implements ChainPort over an EVM JSON-RPC endpoint via
// go-ethereum's ethclient, targeting a channel-registry contract at
// RegistryAddress.
type EVMAdapter struct {
	client          *ethclient.Client
	registryABI     abi.ABI
	registryAddress common.Address
	signerKey       *ecdsa.PrivateKey
	chainID         *big.Int
	retry           RetryConfig
}

// NewEVMAdapter dials rpcURL and parses the registry ABI. signerKey is
// the operator's own account used to pay gas for opening channels and
// submitting non-cooperative settlements; it is distinct from the
// per-peer balance-proof signing key managed by the keysign port.
func NewEVMAdapter(ctx context.Context, rpcURL string, registryAddress common.Address, signerKey *ecdsa.PrivateKey, retry RetryConfig) (*EVMAdapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}

	parsedABI, err := abi.JSON(strings.NewReader(channelRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse channel registry abi: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, &ChainError{Kind: ErrChainError, Diagnostic: err.Error()}
	}

	return &EVMAdapter{
		client:          client,
		registryABI:     parsedABI,
		registryAddress: registryAddress,
		signerKey:       signerKey,
		chainID:         chainID,
		retry:           retry,
	}, nil
}

// withRetry runs op, retrying transient ChainErrors up to a.retry.Attempts
// times with exponential backoff capped at a.retry.DelayMs as the initial
// interval, per spec.md §4.3.
func (a *EVMAdapter) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(a.retry.DelayMs) * time.Millisecond
	policy := backoff.WithMaxRetries(bo, uint64(a.retry.Attempts))

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		var chainErr *ChainError
		if ce, ok := err.(*ChainError); ok {
			chainErr = ce
		}
		if chainErr == nil || !chainErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

// OpenChannel submits the opening transaction and waits for the
// configured confirmation depth.
func (a *EVMAdapter) OpenChannel(ctx context.Context, peer Address, token Address, initialDeposit *big.Int, timeout time.Duration) (ChannelID, error) {
	var channelID ChannelID

	err := a.withRetry(ctx, func() error {
		calldata, err := a.registryABI.Pack(
			"openChannel", common.Address(peer), common.Address(token),
			new(big.Int).SetUint64(uint64(timeout.Seconds())),
		)
		if err != nil {
			return fmt.Errorf("pack openChannel: %w", err)
		}

		tx, err := a.sendTransaction(ctx, calldata, initialDeposit)
		if err != nil {
			return err
		}

		receipt, err := a.waitMined(ctx, tx.Hash())
		if err != nil {
			return err
		}
		if receipt.Status == types.ReceiptStatusFailed {
			return &ChainError{Kind: ErrReverted, Diagnostic: "openChannel reverted"}
		}

		channelID = channelIDFromReceipt(receipt)
		return nil
	})
	if err != nil {
		return ChannelID{}, err
	}

	return channelID, nil
}

// GetChannelState reads and unpacks the registry's channel record.
func (a *EVMAdapter) GetChannelState(ctx context.Context, channelID ChannelID) (ChannelState, error) {
	calldata, err := a.registryABI.Pack("channels", channelID)
	if err != nil {
		return ChannelState{}, fmt.Errorf("pack channels: %w", err)
	}

	var state ChannelState
	err = a.withRetry(ctx, func() error {
		result, callErr := a.client.CallContract(ctx, ethereumCallMsg(a.registryAddress, calldata), nil)
		if callErr != nil {
			return &ChainError{Kind: ErrChainError, Diagnostic: callErr.Error()}
		}

		unpacked, unpackErr := a.registryABI.Unpack("channels", result)
		if unpackErr != nil {
			return &ChainError{Kind: ErrChainError, Diagnostic: unpackErr.Error()}
		}

		state, err = decodeChannelState(channelID, unpacked)
		return err
	})

	return state, err
}

// DigestBalanceProof hashes the ABI-packed tuple
// (channelId, nonce, transferredAmount, token) with Keccak256, the
// conventional EVM balance-proof digest shape (see DESIGN.md's Open
// Question decision on the verifier digest format).
func (a *EVMAdapter) DigestBalanceProof(channelID ChannelID, nonce uint64, transferredAmount *big.Int, token Address) ([]byte, error) {
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	uint64Type, err := abi.NewType("uint64", "", nil)
	if err != nil {
		return nil, err
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}

	args := abi.Arguments{
		{Type: bytes32Type}, {Type: uint64Type}, {Type: uint256Type}, {Type: addressType},
	}
	packed, err := args.Pack(channelID, nonce, transferredAmount, common.Address(token))
	if err != nil {
		return nil, fmt.Errorf("pack balance proof digest input: %w", err)
	}

	return crypto.Keccak256(packed), nil
}

// SubmitSettlement posts a signed balance proof on-chain for a
// non-cooperative settlement.
func (a *EVMAdapter) SubmitSettlement(ctx context.Context, channelID ChannelID, proof BalanceProof) ([32]byte, error) {
	var txHash [32]byte

	err := a.withRetry(ctx, func() error {
		calldata, err := a.registryABI.Pack(
			"submitSettlement", channelID, proof.Nonce, proof.TransferredAmount, proof.Signature,
		)
		if err != nil {
			return fmt.Errorf("pack submitSettlement: %w", err)
		}

		tx, err := a.sendTransaction(ctx, calldata, big.NewInt(0))
		if err != nil {
			return err
		}

		receipt, err := a.waitMined(ctx, tx.Hash())
		if err != nil {
			return err
		}
		if receipt.Status == types.ReceiptStatusFailed {
			return &ChainError{Kind: ErrReverted, Diagnostic: "submitSettlement reverted"}
		}

		txHash = tx.Hash()
		return nil
	})

	return txHash, err
}
