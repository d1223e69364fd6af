package settlement

import (
	"math/big"
	"time"

	"github.com/ilpfi/connectord/accounting"
	"github.com/ilpfi/connectord/chainlink"
	"github.com/ilpfi/connectord/keysign"
	"github.com/ilpfi/connectord/telemetry"
)

// Config mirrors spec.md §4.5's enumerated configuration, plus the
// injected ports the executor drives, following the convention of
// htlcswitch.Config in the teacher. Chain, Signer and Ledger must be set;
// Validate fills in a zero DefaultInitialDeposit, a zero
// MinSettlementAmount and a no-op Telemetry sink when those are nil.
type Config struct {
	Enabled bool

	SettlementTokenAddress chainlink.Address
	DefaultInitialDeposit  *big.Int
	DefaultSettlementTimeout time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	// MinSettlementAmount is the configured minimum below which an
	// event is dropped silently per spec.md §4.5's edge case.
	MinSettlementAmount *big.Int

	// PeerAddressMap resolves a peerId to its on-chain counterparty
	// address.
	PeerAddressMap map[string]chainlink.Address

	NodeID string

	// SigningKeyID is the keysign.Backend key identifier used to sign
	// outgoing balance proofs. A real deployment might derive this
	// per-peer; the spec names a single signingKeyId per executor.
	SigningKeyID string

	Chain     chainlink.ChainPort
	Signer    keysign.Backend
	Ledger    accounting.Ledger
	Telemetry telemetry.Sink
}

// Validate checks the invariants spec.md §4.5 calls out explicitly
// (retryAttempts >= 1, retryDelayMs >= 0) plus the injected dependencies
// every executor needs regardless of configuration.
func (c *Config) Validate() error {
	if c.RetryAttempts < 1 {
		return newExecutorError(ErrConfigInvalid, "Validate", "", nil)
	}
	if c.RetryDelay < 0 {
		return newExecutorError(ErrConfigInvalid, "Validate", "", nil)
	}
	if c.Chain == nil || c.Signer == nil || c.Ledger == nil {
		return newExecutorError(ErrConfigInvalid, "Validate", "", nil)
	}
	if c.DefaultInitialDeposit == nil {
		c.DefaultInitialDeposit = big.NewInt(0)
	}
	if c.MinSettlementAmount == nil {
		c.MinSettlementAmount = big.NewInt(0)
	}
	if c.Telemetry == nil {
		c.Telemetry = telemetry.SinkFunc(func(telemetry.Event) {})
	}
	return nil
}
