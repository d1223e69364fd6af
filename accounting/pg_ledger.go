package accounting

import (
	"context"
	"math/big"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// schemaVersion tracks schema migrations the way channeldb's
// version/migration table does for its boltdb buckets, reapplied here to
// a SQL schema since this is the one concern in the copied teacher subset
// that actually targets Postgres (jackc/pgx is a direct teacher
// dependency the rest of the core has no other use for).
const schemaVersion = 1

// uniqueViolationCode is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settlement_ledger (
	peer_id       TEXT NOT NULL,
	token_id      TEXT NOT NULL,
	nonce         BIGINT NOT NULL DEFAULT 0,
	amount        NUMERIC(78, 0) NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (peer_id, token_id, nonce)
)`

// PGLedger is a Ledger backed by PostgreSQL, durable across process
// restarts. Idempotency for nonce != 0 is enforced by the table's primary
// key rather than an in-process map.
type PGLedger struct {
	pool *pgxpool.Pool
}

// OpenPGLedger connects to dsn and ensures the settlement_ledger table
// exists, migrating it into place on first use the way channeldb.Open
// creates its buckets on first use.
func OpenPGLedger(ctx context.Context, dsn string) (*PGLedger, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PGLedger{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (l *PGLedger) Close() {
	l.pool.Close()
}

// RecordSettlement inserts a row for (peerID, tokenID, nonce). A repeat
// insert with nonce != 0 hits the primary key and is treated as the
// idempotent no-op spec.md §4.4 requires; nonce == 0 rows always insert,
// since the caller is responsible for supplying monotonic amounts in
// that mode and there is no natural conflict key to dedupe on.
func (l *PGLedger) RecordSettlement(ctx context.Context, peerID, tokenID string, amount *big.Int, nonce uint64) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO settlement_ledger (peer_id, token_id, nonce, amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (peer_id, token_id, nonce) DO NOTHING`,
		peerID, tokenID, nonce, amount.String(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if asPgError(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil
		}
		return err
	}
	return nil
}

// GetBalances sums every settlement recorded for peerID across all
// tokens into a single credit balance, mirroring InMemoryLedger's
// semantics.
func (l *PGLedger) GetBalances(ctx context.Context, peerID string) (Balances, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM settlement_ledger WHERE peer_id = $1`,
		peerID,
	)

	var total string
	if err := row.Scan(&total); err != nil {
		if err == pgx.ErrNoRows {
			return Balances{CreditBalance: big.NewInt(0), DebitBalance: big.NewInt(0)}, nil
		}
		return Balances{}, err
	}

	credit, ok := new(big.Int).SetString(total, 10)
	if !ok {
		credit = big.NewInt(0)
	}

	return Balances{CreditBalance: credit, DebitBalance: big.NewInt(0)}, nil
}

func asPgError(err error, target **pgconn.PgError) bool {
	pgErr, ok := err.(*pgconn.PgError)
	if ok {
		*target = pgErr
	}
	return ok
}
