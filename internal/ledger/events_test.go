package ledger

import (
	"testing"

	"Vigil/internal/fhe"
)

func TestEventLogAppendAndRead(t *testing.T) {
	db := newTestStorage(t)
	log := NewEventLog(db)

	log.Append(Event{Time: 100, Kind: EventBatchOpened, Batch: 1})
	log.Append(Event{Time: 200, Kind: EventSignalSubmitted, Batch: 1, Actor: "ab"})
	log.Append(Event{Time: 300, Kind: EventDecryptionRequested, Batch: 1, RequestID: 7})

	events, err := Events(db)
	if err != nil {
		t.Fatalf("read events failed: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	for i, e := range events {
		if e.Seq != uint64(i) {
			t.Errorf("event %d: expected seq %d, got %d", i, i, e.Seq)
		}
	}

	if events[1].Kind != EventSignalSubmitted || events[1].Actor != "ab" {
		t.Errorf("unexpected event: %+v", events[1])
	}

	if events[2].RequestID != 7 {
		t.Errorf("expected request id 7, got %d", events[2].RequestID)
	}
}

func TestEventLogSequenceRecovery(t *testing.T) {
	db := newTestStorage(t)

	log := NewEventLog(db)
	log.Append(Event{Time: 100, Kind: EventBatchOpened})
	log.Append(Event{Time: 200, Kind: EventBatchClosed})

	// A fresh log over the same storage continues the sequence
	recovered := NewEventLog(db)
	recovered.Append(Event{Time: 300, Kind: EventBatchOpened})

	events, err := Events(db)
	if err != nil {
		t.Fatalf("read events failed: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	if events[2].Seq != 2 {
		t.Errorf("expected recovered seq 2, got %d", events[2].Seq)
	}
}

func TestLedgerEmitsEvents(t *testing.T) {
	db := newTestStorage(t)
	env := newTestEnv(t)

	// Rebuild the ledger with a real event log on a dedicated store
	log := NewEventLog(db)
	l := New(Config{Identity: Hash{0xAA}, Owner: env.owner}, env.backend, env.svc, nil, db, log)

	if err := l.SubmitLifeSignal(env.owner, 100, 100); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := l.SetInactivityThreshold(env.owner, 101, 500); err != nil {
		t.Fatalf("set threshold failed: %v", err)
	}

	events, err := Events(db)
	if err != nil {
		t.Fatalf("read events failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	if events[0].Kind != EventSignalSubmitted {
		t.Errorf("expected signal event, got %s", events[0].Kind)
	}

	if events[1].Kind != EventThresholdSet {
		t.Errorf("expected threshold event, got %s", events[1].Kind)
	}
}

func TestContextStoreRoundtrip(t *testing.T) {
	db := newTestStorage(t)
	store := newContextStore(db)

	ctx := DecryptionContext{
		Batch:     3,
		StateHash: Hash{0x01, 0x02, 0x03},
	}

	if err := store.put(42, ctx); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, ok := store.get(42)
	if !ok {
		t.Fatal("expected context")
	}

	if got.Batch != 3 || got.StateHash != ctx.StateHash || got.Processed {
		t.Errorf("unexpected context: %+v", got)
	}

	// Unknown id
	if _, ok := store.get(999); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestContextStoreMarkProcessed(t *testing.T) {
	db := newTestStorage(t)
	store := newContextStore(db)

	if err := store.markProcessed(1); err != ErrUnknownRequest {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}

	if err := store.put(1, DecryptionContext{Batch: 1}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := store.markProcessed(1); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	got, _ := store.get(1)
	if !got.Processed {
		t.Error("processed flag not set")
	}
}

func TestBindingHashSensitivity(t *testing.T) {
	h1 := Hash{0x01}
	h2 := Hash{0x02}

	env := newTestEnv(t)

	a := env.backend.Handle(env.backend.Wrap(1))
	b := env.backend.Handle(env.backend.Wrap(2))
	c := env.backend.Handle(env.backend.Wrap(3))

	base := bindingHash([]fhe.Handle{a, b, c}, h1)

	// Different ledger identity
	if bindingHash([]fhe.Handle{a, b, c}, h2) == base {
		t.Error("identity must be mixed into the hash")
	}

	// Different handle order
	if bindingHash([]fhe.Handle{b, a, c}, h1) == base {
		t.Error("handle order must be part of the hash")
	}

	// Same inputs reproduce the hash
	if bindingHash([]fhe.Handle{a, b, c}, h1) != base {
		t.Error("hash must be deterministic")
	}
}
