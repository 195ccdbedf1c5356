package ledger

import "encoding/hex"

// SubmitLifeSignal records an encrypted activity timestamp from an
// authorized provider. Preconditions, each a hard fail in this order:
// provider authorization, pause flag, per-caller cooldown, open batch.
//
// The aggregate is seeded by the first accepted signal and thereafter
// merged with the homomorphic maximum: a commutative, associative and
// idempotent reducer, so out-of-order and duplicate submissions all
// converge on "latest attested activity" without any decryption.
func (l *Ledger) SubmitLifeSignal(caller Identity, now uint64, timestamp uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.providers[caller] {
		return ErrNotProvider
	}

	if l.paused {
		return ErrPaused
	}

	if !l.cooldownElapsed(l.lastSignalAt[caller], now) {
		return ErrCooldownActive
	}

	if l.closed[l.batch] {
		return ErrBatchClosed
	}

	l.lastSignalAt[caller] = now

	signal := l.arith.Wrap(timestamp)

	if !l.arith.IsInitialized(l.lastSignal) {
		l.lastSignal = signal
	} else {
		l.lastSignal = l.arith.Max(l.lastSignal, signal)
	}

	l.emit(Event{
		Time:  now,
		Kind:  EventSignalSubmitted,
		Actor: hex.EncodeToString(caller[:]),
		Batch: l.batch,
	})

	return nil
}

// SetInactivityThreshold overwrites the encrypted inactivity threshold
// wholesale. Owner-only, unpaused. The threshold is a policy parameter
// rather than a measurement, so no aggregation applies.
func (l *Ledger) SetInactivityThreshold(caller Identity, now uint64, threshold uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	if l.paused {
		return ErrPaused
	}

	wrapped := l.arith.Wrap(threshold)
	if !l.arith.IsInitialized(wrapped) {
		return ErrInvalidThreshold
	}

	l.threshold = wrapped
	handle := l.arith.Handle(wrapped)

	l.emit(Event{
		Time:  now,
		Kind:  EventThresholdSet,
		Actor: hex.EncodeToString(caller[:]),
		Batch: l.batch,
		Detail: map[string]string{
			"handle": hex.EncodeToString(handle[:]),
		},
	})

	return nil
}
