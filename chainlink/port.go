// Package chainlink abstracts the EVM-compatible chain interactions the
// settlement executor needs: opening a payment channel, reading its
// current on-chain state, and posting a balance proof for a
// non-cooperative settlement. The interface is intentionally general so
// that a real RPC-backed adapter, a simulated backend for tests, or a
// future non-EVM adapter can all satisfy it.
package chainlink

import (
	"context"
	"math/big"
	"time"
)

// ErrKind classifies a chain-port failure so the settlement executor can
// decide whether to retry.
type ErrKind uint8

const (
	// ErrChainError covers generic RPC failures: connection refused,
	// malformed response, node out of sync. Transient.
	ErrChainError ErrKind = iota

	// ErrReverted means the submitted transaction was mined but
	// reverted on-chain. Terminal: resubmitting identical calldata will
	// revert again.
	ErrReverted

	// ErrInsufficientFunds means the configured account cannot cover the
	// deposit or gas for the requested operation. Terminal until the
	// operator funds the account; the executor does not retry this
	// automatically.
	ErrInsufficientFunds

	// ErrTimeout means the operation did not observe the required
	// number of confirmations within the adapter's deadline. Transient.
	ErrTimeout

	// ErrNonceConflict means a concurrent proof from the counterparty
	// landed first; the caller should refresh channel state and retry
	// once per spec.md §4.5.
	ErrNonceConflict
)

// ChainError wraps a classified chain-port failure with the adapter's
// diagnostic string.
type ChainError struct {
	Kind       ErrKind
	Diagnostic string
}

func (e *ChainError) Error() string {
	return e.Kind.label() + ": " + e.Diagnostic
}

func (k ErrKind) label() string {
	switch k {
	case ErrChainError:
		return "chain error"
	case ErrReverted:
		return "transaction reverted"
	case ErrInsufficientFunds:
		return "insufficient funds"
	case ErrTimeout:
		return "chain operation timed out"
	case ErrNonceConflict:
		return "on-chain nonce conflict"
	default:
		return "chain port error"
	}
}

// Retryable reports whether the settlement executor should retry a
// request that failed with this kind of error. NonceConflict is handled
// separately by the executor (refresh-and-retry-once, not the general
// retry budget), so it reports false here.
func (e *ChainError) Retryable() bool {
	switch e.Kind {
	case ErrChainError, ErrTimeout:
		return true
	default:
		return false
	}
}

// ChannelStatus mirrors spec.md §3's ChannelState lifecycle.
type ChannelStatus uint8

const (
	StatusOpening ChannelStatus = iota
	StatusOpened
	StatusSettling
	StatusSettled
	StatusDisputed
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusOpening:
		return "opening"
	case StatusOpened:
		return "opened"
	case StatusSettling:
		return "settling"
	case StatusSettled:
		return "settled"
	case StatusDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// ChannelID is a 32-byte opaque on-chain channel identifier.
type ChannelID [32]byte

// Address is a 20-byte EVM address.
type Address [20]byte

// ChannelState is the on-chain-observable state of one payment channel,
// per spec.md §3.
type ChannelState struct {
	ChannelID         ChannelID
	Status            ChannelStatus
	MyDeposit         *big.Int
	TheirDeposit      *big.Int
	MyNonce           uint64
	TheirNonce        uint64
	MyTransferred     *big.Int
	TheirTransferred  *big.Int
	Participants      [2]Address
	TokenAddress      Address
	SettlementTimeout time.Duration
}

// BalanceProof is one signed tuple authorizing a claim against a
// channel, per spec.md §3.
type BalanceProof struct {
	ChannelID         ChannelID
	Nonce             uint64
	TransferredAmount *big.Int
	TokenAddress      Address
	Signature         []byte
}

// ChainPort is the capability interface the settlement executor drives.
type ChainPort interface {
	// OpenChannel submits the opening transaction for a channel between
	// the local node and peer over token, waits for the adapter's
	// configured confirmation depth, and returns the resulting
	// ChannelID. If the chain reports a channel already exists for
	// (self, peer, token), the adapter returns that ChannelID instead of
	// failing (spec.md §4.5 tie-break).
	OpenChannel(ctx context.Context, peer Address, token Address, initialDeposit *big.Int, timeout time.Duration) (ChannelID, error)

	// GetChannelState reads the current on-chain state of channelID.
	GetChannelState(ctx context.Context, channelID ChannelID) (ChannelState, error)

	// DigestBalanceProof returns the canonical digest the on-chain
	// verifier expects for (channelID, nonce, transferredAmount, token),
	// for the caller to pass to a Signer.
	DigestBalanceProof(channelID ChannelID, nonce uint64, transferredAmount *big.Int, token Address) ([]byte, error)

	// SubmitSettlement posts proof on-chain for channelID. Used only in
	// non-cooperative paths; cooperative settlement stays off-chain
	// until close.
	SubmitSettlement(ctx context.Context, channelID ChannelID, proof BalanceProof) (txHash [32]byte, err error)
}
