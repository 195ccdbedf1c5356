package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"Vigil/internal/fhe"
)

// cleartextsSize is the size of the fixed-width cleartext blob:
// 8-byte BE last-signal timestamp, 8-byte BE threshold, 1-byte trigger.
const cleartextsSize = 17

// Decision is the decoded outcome of a verified decryption callback.
type Decision struct {
	RequestID  uint64
	Batch      uint64
	LastSignal uint64
	Threshold  uint64
	Triggered  bool
}

// CheckInheritanceTrigger builds the encrypted comparison
//
//	trigger = (wrap(now) - lastSignal) >= threshold
//
// commits to the exact ciphertext set via the binding hash, submits it
// to the oracle, and records a pending decryption context. Returns the
// oracle-assigned request id.
//
// Preconditions, each a hard fail in this order: both encrypted values
// initialized, unpaused, per-caller request cooldown (a separate
// bucket from signal submission, since a caller can be both provider
// and checker), open batch.
func (l *Ledger) CheckInheritanceTrigger(caller Identity, now uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.arith.IsInitialized(l.lastSignal) || !l.arith.IsInitialized(l.threshold) {
		return 0, ErrInvalidThreshold
	}

	if l.paused {
		return 0, ErrPaused
	}

	if !l.cooldownElapsed(l.lastCheckAt[caller], now) {
		return 0, ErrCooldownActive
	}

	if l.closed[l.batch] {
		return 0, ErrBatchClosed
	}

	handles, hash := l.deriveRequest(now)

	requestID, err := l.oracle.SubmitDecryptionRequest(handles)
	if err != nil {
		return 0, fmt.Errorf("submit decryption request:\n%w", err)
	}

	// A request id binds to at most one context for its entire
	// lifetime. An oracle that hands out an already-bound id (restart,
	// misbehavior) must not reset the replay guard or rebind the
	// stored hash: an old attested answer for that id would otherwise
	// pass every callback check against the fresh context.
	if _, exists := l.contexts.get(requestID); exists {
		return 0, ErrDuplicateRequest
	}

	// Mutations happen only after the submission succeeded and the
	// context landed, so a failed call leaves no partial state behind.
	if err := l.contexts.put(requestID, DecryptionContext{
		Batch:     l.batch,
		StateHash: hash,
	}); err != nil {
		return 0, fmt.Errorf("store decryption context:\n%w", err)
	}

	l.lastCheckAt[caller] = now

	l.emit(Event{
		Time:      now,
		Kind:      EventDecryptionRequested,
		Actor:     hex.EncodeToString(caller[:]),
		Batch:     l.batch,
		RequestID: requestID,
	})

	return requestID, nil
}

// OnDecryptionResult is the oracle-invoked callback. It re-derives the
// expected ciphertext set from live state at the current time, rejects
// on replay or state drift, verifies the attestation, decodes the
// cleartexts and marks the request processed exactly once.
//
// The hash rebind is a freshness check, not merely authenticity: the
// aggregate may have moved between request and response, and a stale
// or forged answer must never be applied to fresher state.
func (l *Ledger) OnDecryptionResult(requestID uint64, now uint64, cleartexts, proof []byte) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, ok := l.contexts.get(requestID)
	if !ok {
		return Decision{}, ErrUnknownRequest
	}

	if ctx.Processed {
		return Decision{}, ErrReplayDetected
	}

	if !l.arith.IsInitialized(l.lastSignal) || !l.arith.IsInitialized(l.threshold) {
		return Decision{}, ErrStateMismatch
	}

	_, hash := l.deriveRequest(now)
	if hash != ctx.StateHash {
		return Decision{}, ErrStateMismatch
	}

	if l.verifier == nil || !l.verifier.Verify(requestID, cleartexts, proof) {
		return Decision{}, ErrDecryptionFailed
	}

	decision, err := decodeCleartexts(requestID, ctx.Batch, cleartexts)
	if err != nil {
		return Decision{}, err
	}

	// Idempotency barrier: the only place the flag flips, and the
	// replay guard above guarantees it runs once per request.
	if err := l.contexts.markProcessed(requestID); err != nil {
		return Decision{}, fmt.Errorf("mark processed:\n%w", err)
	}

	l.emit(Event{
		Time:      now,
		Kind:      EventDecryptionCompleted,
		Batch:     ctx.Batch,
		RequestID: requestID,
		Detail: map[string]string{
			"last_signal": strconv.FormatUint(decision.LastSignal, 10),
			"threshold":   strconv.FormatUint(decision.Threshold, 10),
			"triggered":   strconv.FormatBool(decision.Triggered),
		},
	})

	return decision, nil
}

// deriveRequest computes the ordered handle set and binding hash for
// the comparison at time now. Request and callback both go through
// this single routine so the two derivations agree bit for bit.
// The order {lastSignal, threshold, trigger} is part of the protocol
// contract with the oracle.
func (l *Ledger) deriveRequest(now uint64) ([]fhe.Handle, Hash) {
	elapsed := l.arith.Sub(l.arith.Wrap(now), l.lastSignal)
	trigger := l.arith.CompareGE(elapsed, l.threshold)

	handles := []fhe.Handle{
		l.arith.Handle(l.lastSignal),
		l.arith.Handle(l.threshold),
		l.arith.Handle(trigger),
	}

	return handles, bindingHash(handles, l.identity)
}

// decodeCleartexts decodes the fixed-width cleartext blob in the
// agreed order: last-signal timestamp, threshold, trigger flag.
func decodeCleartexts(requestID, batch uint64, cleartexts []byte) (Decision, error) {
	if len(cleartexts) != cleartextsSize {
		return Decision{}, ErrDecryptionFailed
	}

	return Decision{
		RequestID:  requestID,
		Batch:      batch,
		LastSignal: binary.BigEndian.Uint64(cleartexts[0:8]),
		Threshold:  binary.BigEndian.Uint64(cleartexts[8:16]),
		Triggered:  cleartexts[16] == 1,
	}, nil
}
