package ledger

import "encoding/hex"

// Batches are a coarse temporal partition of the data plane. Closing
// the current batch is a kill-switch for submissions and checks that
// is independent of the global pause flag: pause stops administrative
// mutation paths, a closed batch stops data-plane paths.

// OpenNewBatch increments the batch counter and opens the new batch.
// Owner-only, unpaused; the owner check precedes the pause check.
func (l *Ledger) OpenNewBatch(caller Identity, now uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return 0, ErrNotOwner
	}

	if l.paused {
		return 0, ErrPaused
	}

	l.batch++
	l.closed[l.batch] = false

	l.emit(Event{
		Time:  now,
		Kind:  EventBatchOpened,
		Actor: hex.EncodeToString(caller[:]),
		Batch: l.batch,
	})

	return l.batch, nil
}

// CloseCurrentBatch marks the current batch closed.
// Owner-only, unpaused; the owner check precedes the pause check.
func (l *Ledger) CloseCurrentBatch(caller Identity, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	if l.paused {
		return ErrPaused
	}

	l.closed[l.batch] = true

	l.emit(Event{
		Time:  now,
		Kind:  EventBatchClosed,
		Actor: hex.EncodeToString(caller[:]),
		Batch: l.batch,
	})

	return nil
}
