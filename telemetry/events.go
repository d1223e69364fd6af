// Package telemetry defines the sealed event union emitted by the
// settlement executor, replacing the dashboard's string-tagged event
// shape (spec.md §9) with an exhaustive Go sum type: one struct per
// event kind, a Kind() discriminator, and a Sink that consumes them.
package telemetry

import "math/big"

// Kind discriminates which concrete event a Event carries.
type Kind uint8

const (
	KindSettlementTriggered Kind = iota
	KindSettlementCompleted
	KindSettlementFailed
	KindChannelOpened
	KindChannelBalanceUpdate
	KindChannelSettled
)

func (k Kind) String() string {
	switch k {
	case KindSettlementTriggered:
		return "SETTLEMENT_TRIGGERED"
	case KindSettlementCompleted:
		return "SETTLEMENT_COMPLETED"
	case KindSettlementFailed:
		return "SETTLEMENT_FAILED"
	case KindChannelOpened:
		return "PAYMENT_CHANNEL_OPENED"
	case KindChannelBalanceUpdate:
		return "PAYMENT_CHANNEL_BALANCE_UPDATE"
	case KindChannelSettled:
		return "PAYMENT_CHANNEL_SETTLED"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Event is the sealed union every telemetry notification satisfies.
// Concrete event types embed base, whose unexported isEvent method keeps
// types outside this package from satisfying Event on their own, and
// Kind() gives callers an exhaustive switch without a type assertion per
// branch.
type Event interface {
	Kind() Kind
	PeerID() string
	ChannelID() string
	isEvent()
}

type base struct {
	peerID    string
	channelID string
}

func (b base) PeerID() string    { return b.peerID }
func (b base) ChannelID() string { return b.channelID }
func (base) isEvent()            {}

// SettlementTriggered fires when a SettlementRequired event is accepted
// into the executor's per-peer queue.
type SettlementTriggered struct {
	base
	TokenID        string
	CurrentBalance *big.Int
}

func (SettlementTriggered) Kind() Kind { return KindSettlementTriggered }

// NewSettlementTriggered constructs a SettlementTriggered event.
func NewSettlementTriggered(peerID, channelID, tokenID string, currentBalance *big.Int) SettlementTriggered {
	return SettlementTriggered{
		base:           base{peerID: peerID, channelID: channelID},
		TokenID:        tokenID,
		CurrentBalance: currentBalance,
	}
}

// SettlementCompleted fires once a balance proof has been signed,
// appended to the proof log, and recorded with the accounting port.
type SettlementCompleted struct {
	base
	Nonce             uint64
	TransferredAmount *big.Int
}

func (SettlementCompleted) Kind() Kind { return KindSettlementCompleted }

// NewSettlementCompleted constructs a SettlementCompleted event.
func NewSettlementCompleted(peerID, channelID string, nonce uint64, transferredAmount *big.Int) SettlementCompleted {
	return SettlementCompleted{
		base:              base{peerID: peerID, channelID: channelID},
		Nonce:             nonce,
		TransferredAmount: transferredAmount,
	}
}

// SettlementFailed fires when a settlement's retry budget is exhausted
// or a non-retryable error is encountered.
type SettlementFailed struct {
	base
	Cause string
}

func (SettlementFailed) Kind() Kind { return KindSettlementFailed }

// NewSettlementFailed constructs a SettlementFailed event.
func NewSettlementFailed(peerID, channelID, cause string) SettlementFailed {
	return SettlementFailed{base: base{peerID: peerID, channelID: channelID}, Cause: cause}
}

// ChannelOpened fires the first time the executor opens (or adopts) a
// channel for a peer.
type ChannelOpened struct {
	base
	Adopted bool
}

func (ChannelOpened) Kind() Kind { return KindChannelOpened }

// NewChannelOpened constructs a ChannelOpened event.
func NewChannelOpened(peerID, channelID string, adopted bool) ChannelOpened {
	return ChannelOpened{base: base{peerID: peerID, channelID: channelID}, Adopted: adopted}
}

// ChannelBalanceUpdate fires whenever a channel's own-side transferred
// amount advances.
type ChannelBalanceUpdate struct {
	base
	Nonce             uint64
	TransferredAmount *big.Int
}

func (ChannelBalanceUpdate) Kind() Kind { return KindChannelBalanceUpdate }

// NewChannelBalanceUpdate constructs a ChannelBalanceUpdate event.
func NewChannelBalanceUpdate(peerID, channelID string, nonce uint64, transferredAmount *big.Int) ChannelBalanceUpdate {
	return ChannelBalanceUpdate{
		base:              base{peerID: peerID, channelID: channelID},
		Nonce:             nonce,
		TransferredAmount: transferredAmount,
	}
}

// ChannelSettled fires when a channel transitions to the settled status.
type ChannelSettled struct {
	base
	TxHash string
}

func (ChannelSettled) Kind() Kind { return KindChannelSettled }

// NewChannelSettled constructs a ChannelSettled event.
func NewChannelSettled(peerID, channelID, txHash string) ChannelSettled {
	return ChannelSettled{base: base{peerID: peerID, channelID: channelID}, TxHash: txHash}
}

// Sink receives every Event the executor emits. Implementations must not
// block for long: the executor emits synchronously, from the goroutine
// calling HandleEvent (SettlementTriggered) and from its per-peer worker
// goroutines (every other kind).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }
