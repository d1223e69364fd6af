// Package accounting abstracts the ledger that records committed
// settlements and exposes per-peer balances. The settlement executor
// (package settlement) is the only writer; everything else only reads.
package accounting

import (
	"context"
	"math/big"
)

// Balances is the read-only view returned by GetBalances.
type Balances struct {
	CreditBalance *big.Int
	DebitBalance  *big.Int
}

// Ledger is the capability interface the settlement executor calls into
// once a balance proof has been committed.
type Ledger interface {
	// RecordSettlement persists that amount units of tokenID have been
	// settled with peerID. If nonce is non-zero the call is idempotent
	// by (peerID, tokenID, nonce); a caller that omits nonce (passes 0)
	// is expected to supply monotonically increasing amounts itself.
	RecordSettlement(ctx context.Context, peerID, tokenID string, amount *big.Int, nonce uint64) error

	// GetBalances returns the current credit/debit balance for peerID.
	GetBalances(ctx context.Context, peerID string) (Balances, error)
}
