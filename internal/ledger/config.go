package ledger

import (
	"encoding/hex"
	"strconv"
)

// TransferOwnership hands ownership to newOwner. Owner-only.
// Ownership transfer does not touch provider status: the old owner
// keeps (or lacks) provider status independently.
func (l *Ledger) TransferOwnership(caller Identity, now uint64, newOwner Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	old := l.owner
	l.owner = newOwner

	l.emit(Event{
		Time:  now,
		Kind:  EventOwnershipTransferred,
		Actor: hex.EncodeToString(caller[:]),
		Detail: map[string]string{
			"old_owner": hex.EncodeToString(old[:]),
			"new_owner": hex.EncodeToString(newOwner[:]),
		},
	})

	return nil
}

// AddProvider authorizes id to submit life signals. Owner-only.
// A no-op without an event if id is already a provider.
func (l *Ledger) AddProvider(caller Identity, now uint64, id Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	if l.providers[id] {
		return nil
	}

	l.providers[id] = true

	l.emit(Event{
		Time:   now,
		Kind:   EventProviderAdded,
		Actor:  hex.EncodeToString(caller[:]),
		Detail: map[string]string{"provider": hex.EncodeToString(id[:])},
	})

	return nil
}

// RemoveProvider revokes signal authorization for id. Owner-only.
// A no-op without an event if id is not a provider.
func (l *Ledger) RemoveProvider(caller Identity, now uint64, id Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	if !l.providers[id] {
		return nil
	}

	delete(l.providers, id)

	l.emit(Event{
		Time:   now,
		Kind:   EventProviderRemoved,
		Actor:  hex.EncodeToString(caller[:]),
		Detail: map[string]string{"provider": hex.EncodeToString(id[:])},
	})

	return nil
}

// SetPaused sets the pause flag. Owner-only. Always applies and always
// emits, even when the value is unchanged: external watchers rely on
// the notification as a liveness signal.
func (l *Ledger) SetPaused(caller Identity, now uint64, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	l.paused = paused

	l.emit(Event{
		Time:   now,
		Kind:   EventPausedSet,
		Actor:  hex.EncodeToString(caller[:]),
		Detail: map[string]string{"paused": strconv.FormatBool(paused)},
	})

	return nil
}

// SetCooldown sets the per-caller cooldown interval. Owner-only.
// Always applies and always emits, same as SetPaused.
func (l *Ledger) SetCooldown(caller Identity, now uint64, seconds uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}

	old := l.cooldown
	l.cooldown = seconds

	l.emit(Event{
		Time:  now,
		Kind:  EventCooldownSet,
		Actor: hex.EncodeToString(caller[:]),
		Detail: map[string]string{
			"old_seconds": strconv.FormatUint(old, 10),
			"new_seconds": strconv.FormatUint(seconds, 10),
		},
	})

	return nil
}
