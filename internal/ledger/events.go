package ledger

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"Vigil/internal/logger"
	"Vigil/internal/storage"
)

// EventKind identifies a domain event type.
type EventKind string

// Domain events observable by external indexers and UIs.
const (
	EventOwnershipTransferred EventKind = "ownership_transferred"
	EventProviderAdded        EventKind = "provider_added"
	EventProviderRemoved      EventKind = "provider_removed"
	EventPausedSet            EventKind = "paused_set"
	EventCooldownSet          EventKind = "cooldown_set"
	EventBatchOpened          EventKind = "batch_opened"
	EventBatchClosed          EventKind = "batch_closed"
	EventSignalSubmitted      EventKind = "signal_submitted"
	EventThresholdSet         EventKind = "threshold_set"
	EventDecryptionRequested  EventKind = "decryption_requested"
	EventDecryptionCompleted  EventKind = "decryption_completed"
)

// Event is a single entry in the append-only audit trail.
// Events carry identities, batch ids and opaque handles, never
// ciphertext contents or decrypted values before completion.
type Event struct {
	Seq       uint64            `json:"seq"`
	Time      uint64            `json:"time"`
	Kind      EventKind         `json:"kind"`
	Actor     string            `json:"actor,omitempty"`
	Batch     uint64            `json:"batch,omitempty"`
	RequestID uint64            `json:"request_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// EventLog is the append-only sink the ledger writes to but never
// reads. Appends must not gate ledger control flow.
type EventLog interface {
	Append(e Event)
}

// eventKeyPrefix is the Pebble key prefix for event entries.
var eventKeyPrefix = []byte("e:")

// storedEventLog persists events to Pebble as JSON, keyed by sequence
// number. Persistence is best-effort: a write failure is logged and
// never surfaced to the operation that produced the event.
type storedEventLog struct {
	db *storage.Storage

	mu   sync.Mutex
	next uint64 // next is the next sequence number to assign
}

// NewEventLog creates a Pebble-backed event log.
// The next sequence number is recovered by scanning existing entries.
func NewEventLog(db *storage.Storage) EventLog {
	log := &storedEventLog{db: db}

	_ = db.IteratePrefix(eventKeyPrefix, func(key, value []byte) error {
		if len(key) == len(eventKeyPrefix)+8 {
			seq := binary.BigEndian.Uint64(key[len(eventKeyPrefix):])
			if seq >= log.next {
				log.next = seq + 1
			}
		}

		return nil
	})

	return log
}

// Append assigns a sequence number and persists the event.
func (l *storedEventLog) Append(e Event) {
	l.mu.Lock()
	e.Seq = l.next
	l.next++
	l.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		logger.Warn("event marshal failed", "kind", e.Kind, "error", err)
		return
	}

	if err := l.db.Set(makeEventKey(e.Seq), data); err != nil {
		logger.Warn("event write failed", "kind", e.Kind, "seq", e.Seq, "error", err)
	}

	logger.Debug("event", "kind", e.Kind, "seq", e.Seq, "batch", e.Batch)
}

// makeEventKey builds the Pebble key for an event: "e:" + seq BE64.
func makeEventKey(seq uint64) []byte {
	key := make([]byte, len(eventKeyPrefix)+8)
	copy(key, eventKeyPrefix)
	binary.BigEndian.PutUint64(key[len(eventKeyPrefix):], seq)

	return key
}

// Events returns all persisted events in sequence order.
func Events(db *storage.Storage) ([]Event, error) {
	var events []Event

	err := db.IteratePrefix(eventKeyPrefix, func(key, value []byte) error {
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return nil // skip malformed entries
		}

		events = append(events, e)

		return nil
	})

	if err != nil {
		return nil, err
	}

	return events, nil
}
