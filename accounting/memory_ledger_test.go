package accounting_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ilpfi/connectord/accounting"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLedgerAccumulates(t *testing.T) {
	ledger := accounting.NewInMemoryLedger()
	ctx := context.Background()

	require.NoError(t, ledger.RecordSettlement(ctx, "peer-a", "ILP", big.NewInt(1000), 1))
	require.NoError(t, ledger.RecordSettlement(ctx, "peer-a", "ILP", big.NewInt(300), 2))

	balances, err := ledger.GetBalances(ctx, "peer-a")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1300), balances.CreditBalance)
}

func TestInMemoryLedgerIdempotentByNonce(t *testing.T) {
	ledger := accounting.NewInMemoryLedger()
	ctx := context.Background()

	require.NoError(t, ledger.RecordSettlement(ctx, "peer-a", "ILP", big.NewInt(1000), 1))
	require.NoError(t, ledger.RecordSettlement(ctx, "peer-a", "ILP", big.NewInt(1000), 1))

	balances, err := ledger.GetBalances(ctx, "peer-a")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), balances.CreditBalance,
		"repeat call with the same nonce must not double-count")
}
