// Package settlement implements C5, the state machine that turns
// threshold-crossed balance events into on-chain channel actions and
// signed balance proofs. One actor instance serializes settlements per
// peerId (at most one in flight at a time, spec.md §4.5's concurrency
// contract) while different peers settle fully in parallel.
package settlement

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ilpfi/connectord/chainlink"
	"github.com/ilpfi/connectord/telemetry"
)

// mailboxCapacity bounds how many SettlementRequired events may queue
// for one peer before HandleEvent blocks the caller. The spec mandates
// queueing, not coalescing (spec.md §9); a generous buffer makes that
// queueing invisible to a well-behaved upstream balance monitor without
// requiring an unbounded queue.
const mailboxCapacity = 256

// Executor is the C5 actor. Construct with New, then Start before
// calling HandleEvent.
type Executor struct {
	cfg Config

	started  int32
	shutdown int32
	wg       sync.WaitGroup

	channels *peerChannelMap
	proofs   *signedProofLog

	mailboxMu sync.Mutex
	mailboxes map[string]chan SettlementRequired

	metrics *metrics
}

// New validates cfg and returns an Executor ready to Start.
func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Executor{
		cfg:       cfg,
		channels:  newPeerChannelMap(),
		proofs:    newSignedProofLog(),
		mailboxes: make(map[string]chan SettlementRequired),
		metrics:   newMetrics(),
	}, nil
}

// Start marks the executor live. It does not spawn per-peer workers
// eagerly; those start lazily on first event, mirroring
// htlcswitch.Switch's lazy link registration.
func (e *Executor) Start() error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		log.Warnf("settlement executor already started")
		return nil
	}

	if !e.cfg.Enabled {
		log.Infof("settlement executor disabled by configuration")
	}

	return nil
}

// Stop closes every peer mailbox and waits for in-flight settlements to
// finish naturally: spec.md §5 forbids aborting a settlement mid
// signature, so Stop only prevents new events from being accepted, then
// drains whatever is already queued before each worker exits.
func (e *Executor) Stop() error {
	if !atomic.CompareAndSwapInt32(&e.shutdown, 0, 1) {
		return nil
	}

	e.mailboxMu.Lock()
	for _, ch := range e.mailboxes {
		close(ch)
	}
	e.mailboxMu.Unlock()

	e.wg.Wait()
	return nil
}

// HandleEvent accepts a SettlementRequired event from the upstream
// balance monitor and enqueues it onto the issuing peer's FIFO mailbox,
// starting that peer's worker goroutine on first use.
func (e *Executor) HandleEvent(ctx context.Context, event SettlementRequired) error {
	if atomic.LoadInt32(&e.started) == 0 {
		return newExecutorError(ErrConfigInvalid, "HandleEvent", event.PeerID, errNotEnabled)
	}
	if atomic.LoadInt32(&e.shutdown) == 1 {
		return newExecutorError(ErrDisabled, "HandleEvent", event.PeerID, errNotEnabled)
	}
	if !e.cfg.Enabled {
		return newExecutorError(ErrDisabled, "HandleEvent", event.PeerID, nil)
	}

	if event.CurrentBalance == nil || event.CurrentBalance.Sign() <= 0 ||
		event.CurrentBalance.Cmp(e.cfg.MinSettlementAmount) < 0 {
		// Silent drop per spec.md §4.5's edge case: zero or
		// below-minimum balances never reach a worker.
		return nil
	}

	e.cfg.Telemetry.Emit(telemetry.NewSettlementTriggered(
		event.PeerID, e.channelIDStringFor(event.PeerID), event.TokenID, event.CurrentBalance,
	))

	mailbox := e.ensureWorker(ctx, event.PeerID)

	select {
	case mailbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) channelIDStringFor(peerID string) string {
	if rt, ok := e.channels.get(peerID); ok && rt != nil {
		return hexChannelID(rt.channelID)
	}
	return ""
}

// ensureWorker returns the mailbox channel for peerID, starting a new
// worker goroutine the first time peerID is seen.
func (e *Executor) ensureWorker(ctx context.Context, peerID string) chan SettlementRequired {
	e.mailboxMu.Lock()
	defer e.mailboxMu.Unlock()

	if ch, ok := e.mailboxes[peerID]; ok {
		return ch
	}

	ch := make(chan SettlementRequired, mailboxCapacity)
	e.mailboxes[peerID] = ch

	e.wg.Add(1)
	go e.runPeerWorker(ctx, peerID, ch)

	return ch
}

// runPeerWorker drains ch strictly in order, running the full
// per-settlement algorithm to completion (success or exhausted retries)
// before considering the next queued event — this is the "at most one
// in flight per peerId" invariant plus FIFO nonce ordering from
// spec.md §5.
func (e *Executor) runPeerWorker(ctx context.Context, peerID string, ch chan SettlementRequired) {
	defer e.wg.Done()

	for event := range ch {
		e.metrics.inFlight.Inc()
		e.processSettlement(ctx, peerID, event)
		e.metrics.inFlight.Dec()
	}
}

// processSettlement runs steps 1-9 of spec.md §4.5 for one event,
// refreshing and retrying once on a nonce conflict, then emitting the
// terminal telemetry event.
func (e *Executor) processSettlement(ctx context.Context, peerID string, event SettlementRequired) {
	attemptID := uuid.New().String()
	log.Debugf("attempt=%s settling peer=%s balance=%s", attemptID, peerID, event.CurrentBalance)

	err := e.attemptSettlement(ctx, peerID, event)

	if execErr, ok := err.(*chainlink.ChainError); ok && execErr.Kind == chainlink.ErrNonceConflict {
		log.Warnf("attempt=%s nonce conflict settling with peer %s, refreshing and retrying once", attemptID, peerID)
		e.invalidateCache(peerID)
		err = e.attemptSettlement(ctx, peerID, event)
	}

	if err != nil {
		log.Errorf("attempt=%s settlement failed for peer %s: %v", attemptID, peerID, err)
		e.metrics.failed.Inc()
		e.cfg.Telemetry.Emit(telemetry.NewSettlementFailed(
			peerID, e.channelIDStringFor(peerID), err.Error(),
		))
		return
	}

	e.metrics.completed.Inc()
}

func (e *Executor) invalidateCache(peerID string) {
	e.channels.set(peerID, nil)
}

// attemptSettlement implements spec.md §4.5 steps 1-9 for one event,
// applying the executor's retry policy independently to the opening,
// signing, and committing phases.
func (e *Executor) attemptSettlement(ctx context.Context, peerID string, event SettlementRequired) error {
	// Step 1: resolve counterparty address.
	peerAddr, ok := e.cfg.PeerAddressMap[peerID]
	if !ok {
		return newExecutorError(ErrUnknownPeer, "attemptSettlement", peerID, nil)
	}

	// Steps 2-3: resolve or open the channel.
	rt, err := e.resolveChannel(ctx, peerID, peerAddr)
	if err != nil {
		return err
	}

	// Step 4: compute the new proof fields.
	newNonce := rt.myNonce + 1
	newTransferred := new(big.Int).Add(rt.myTransferred, event.CurrentBalance)

	// Step 5: canonical digest.
	digest, err := e.cfg.Chain.DigestBalanceProof(
		rt.channelID, newNonce, newTransferred, e.cfg.SettlementTokenAddress,
	)
	if err != nil {
		return err
	}

	// Step 6: sign, with the executor's retry budget.
	var sig []byte
	err = e.withRetry(ctx, peerID, "Sign", func() error {
		var signErr error
		sig, signErr = e.cfg.Signer.Sign(ctx, e.cfg.SigningKeyID, digest)
		return signErr
	})
	if err != nil {
		return err
	}

	proof := chainlink.BalanceProof{
		ChannelID:         rt.channelID,
		Nonce:             newNonce,
		TransferredAmount: newTransferred,
		TokenAddress:      e.cfg.SettlementTokenAddress,
		Signature:         sig,
	}

	// Step 7: append to the log and advance the cached runtime state.
	// This MUST happen before the commit's accounting call so that a
	// failed accounting call still leaves the signed proof in the
	// in-memory log and the nonce never reused (spec.md §8's
	// nonce-monotonicity property). The log is not persisted, so a
	// process crash loses it.
	e.proofs.append(rt.channelID, proof)
	rt.myNonce = newNonce
	rt.myTransferred = newTransferred
	e.channels.set(peerID, rt)

	e.cfg.Telemetry.Emit(telemetry.NewChannelBalanceUpdate(
		peerID, hexChannelID(rt.channelID), newNonce, newTransferred,
	))

	// Step 8: record with the accounting port, with the executor's
	// retry budget.
	err = e.withRetry(ctx, peerID, "RecordSettlement", func() error {
		return e.cfg.Ledger.RecordSettlement(ctx, peerID, event.TokenID, event.CurrentBalance, newNonce)
	})
	if err != nil {
		return err
	}

	// Step 9: success telemetry.
	e.cfg.Telemetry.Emit(telemetry.NewSettlementCompleted(
		peerID, hexChannelID(rt.channelID), newNonce, newTransferred,
	))

	return nil
}

// resolveChannel implements steps 2-3: look up an existing channel for
// peerID, or open one, then load the cached own-side nonce/transferred
// state (fetching on-chain state if the cache is empty, e.g. after a
// restart or a fresh adoption of an existing channel).
func (e *Executor) resolveChannel(ctx context.Context, peerID string, peerAddr chainlink.Address) (*channelRuntime, error) {
	if rt, ok := e.channels.get(peerID); ok && rt != nil {
		return rt, nil
	}

	var channelID chainlink.ChannelID
	var adopted bool

	err := e.withRetry(ctx, peerID, "OpenChannel", func() error {
		var openErr error
		channelID, openErr = e.cfg.Chain.OpenChannel(
			ctx, peerAddr, e.cfg.SettlementTokenAddress,
			e.cfg.DefaultInitialDeposit, e.cfg.DefaultSettlementTimeout,
		)
		return openErr
	})
	if err != nil {
		return nil, err
	}

	state, err := e.cfg.Chain.GetChannelState(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if state.MyNonce > 0 || state.MyTransferred.Sign() > 0 {
		adopted = true
	}

	rt := &channelRuntime{
		channelID:     channelID,
		myNonce:       state.MyNonce,
		myTransferred: state.MyTransferred,
	}
	e.channels.set(peerID, rt)

	e.cfg.Telemetry.Emit(telemetry.NewChannelOpened(peerID, hexChannelID(channelID), adopted))

	return rt, nil
}

// withRetry runs fn, retrying up to cfg.RetryAttempts times with
// cfg.RetryDelay between attempts for transient port errors, per
// spec.md §4.5. Non-retryable errors (UnknownPeer, Reverted,
// OutOfRange, config errors, permission errors) surface immediately.
func (e *Executor) withRetry(ctx context.Context, peerID, op string, fn func() error) error {
	var lastErr error

	maxAttempts := e.cfg.RetryAttempts + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}

		log.Debugf("%s transient failure for peer %s (attempt %d/%d): %v",
			op, peerID, attempt, maxAttempts, err)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(e.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// isRetryable asks the originating port whether an error is transient.
func isRetryable(err error) bool {
	switch e := err.(type) {
	case *chainlink.ChainError:
		return e.Retryable()
	case interface{ Retryable() bool }:
		return e.Retryable()
	default:
		return false
	}
}

// PeerChannels returns a snapshot of the executor's peerId -> channelId
// map, for observation callers outside the settlement package.
func (e *Executor) PeerChannels() map[string]chainlink.ChannelID {
	return e.channels.Snapshot()
}

// Proofs returns a snapshot of the signed proof sequence for channelID.
func (e *Executor) Proofs(channelID chainlink.ChannelID) []chainlink.BalanceProof {
	return e.proofs.Proofs(channelID)
}

func hexChannelID(id chainlink.ChannelID) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
