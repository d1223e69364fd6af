package accounting

import (
	"context"
	"math/big"
	"sync"
)

type ledgerKey struct {
	peerID  string
	tokenID string
}

type settlementRecord struct {
	settled         map[uint64]struct{}
	totalSettled    *big.Int
}

// InMemoryLedger is a Ledger backed by an in-process map, used in tests
// and in deployments that delegate durable accounting to an external
// system and only need this port for the executor's own bookkeeping.
type InMemoryLedger struct {
	mu      sync.Mutex
	records map[ledgerKey]*settlementRecord
}

// NewInMemoryLedger returns an empty InMemoryLedger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{records: make(map[ledgerKey]*settlementRecord)}
}

func (l *InMemoryLedger) recordFor(key ledgerKey) *settlementRecord {
	rec, ok := l.records[key]
	if !ok {
		rec = &settlementRecord{
			settled:      make(map[uint64]struct{}),
			totalSettled: big.NewInt(0),
		}
		l.records[key] = rec
	}
	return rec
}

// RecordSettlement adds amount to the running total for (peerID, tokenID).
// When nonce is non-zero, a repeat call with the same nonce is a no-op,
// satisfying the idempotency contract in spec.md §4.4.
func (l *InMemoryLedger) RecordSettlement(_ context.Context, peerID, tokenID string, amount *big.Int, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.recordFor(ledgerKey{peerID, tokenID})

	if nonce != 0 {
		if _, seen := rec.settled[nonce]; seen {
			return nil
		}
		rec.settled[nonce] = struct{}{}
	}

	rec.totalSettled = new(big.Int).Add(rec.totalSettled, amount)
	return nil
}

// GetBalances returns the cumulative settled amount as the credit
// balance; InMemoryLedger does not track debits independently since it
// has no notion of owed-but-unsettled amounts (that lives upstream, in
// the balance monitor this core consumes events from).
func (l *InMemoryLedger) GetBalances(_ context.Context, peerID string) (Balances, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := big.NewInt(0)
	for key, rec := range l.records {
		if key.peerID == peerID {
			total = new(big.Int).Add(total, rec.totalSettled)
		}
	}

	return Balances{CreditBalance: total, DebitBalance: big.NewInt(0)}, nil
}
