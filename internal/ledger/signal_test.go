package ledger

import "testing"

func TestSubmitLifeSignal(t *testing.T) {
	env := newTestEnv(t)

	if _, ok := env.ledger.SignalHandle(); ok {
		t.Error("aggregate should start uninitialized")
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 100, 100); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, ok := env.ledger.SignalHandle(); !ok {
		t.Error("aggregate should be seeded by first signal")
	}

	if env.ledger.LastSubmissionTime(env.owner) != 100 {
		t.Error("submission time not recorded")
	}
}

func TestSubmitLifeSignalRequiresProvider(t *testing.T) {
	env := newTestEnv(t)
	stranger := Identity{0x99}

	if err := env.ledger.SubmitLifeSignal(stranger, 100, 100); err != ErrNotProvider {
		t.Errorf("expected ErrNotProvider, got %v", err)
	}

	if _, ok := env.ledger.SignalHandle(); ok {
		t.Error("rejected signal must not touch the aggregate")
	}

	if env.ledger.LastSubmissionTime(stranger) != 0 {
		t.Error("rejected signal must not record a submission time")
	}
}

func TestSubmitLifeSignalWhilePaused(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ledger.SetPaused(env.owner, 100, true); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 101, 101); err != ErrPaused {
		t.Errorf("expected ErrPaused, got %v", err)
	}
}

func TestSubmitLifeSignalClosedBatch(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ledger.CloseCurrentBatch(env.owner, 100); err != nil {
		t.Fatalf("close batch failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 101, 101); err != ErrBatchClosed {
		t.Errorf("expected ErrBatchClosed, got %v", err)
	}

	// Opening a new batch reopens the data plane
	if _, err := env.ledger.OpenNewBatch(env.owner, 102); err != nil {
		t.Fatalf("open batch failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 103, 103); err != nil {
		t.Errorf("submit should succeed after new batch: %v", err)
	}
}

func TestSubmitLifeSignalCooldown(t *testing.T) {
	env := newTestEnvWithCooldown(t, 10)

	if err := env.ledger.SubmitLifeSignal(env.owner, 100, 100); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 105, 105); err != ErrCooldownActive {
		t.Errorf("expected ErrCooldownActive, got %v", err)
	}

	// A rejected attempt must not reset the cooldown window
	if env.ledger.LastSubmissionTime(env.owner) != 100 {
		t.Error("rejected submit must not update the submission time")
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 110, 110); err != nil {
		t.Errorf("submit at cooldown boundary should succeed: %v", err)
	}
}

func TestSubmitLifeSignalCooldownIsPerCaller(t *testing.T) {
	env := newTestEnvWithCooldown(t, 10)
	other := Identity{0x10}

	if err := env.ledger.AddProvider(env.owner, 100, other); err != nil {
		t.Fatalf("add provider failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 100, 100); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// A different provider is not rate-limited by the owner's window
	if err := env.ledger.SubmitLifeSignal(other, 101, 101); err != nil {
		t.Errorf("other provider should not share the cooldown bucket: %v", err)
	}
}

// TestAggregateOrderIndependence submits the same timestamps in two
// different orders and expects bit-identical aggregates: max is
// commutative, associative and idempotent.
func TestAggregateOrderIndependence(t *testing.T) {
	a := newTestEnv(t)
	b := newTestEnv(t)

	for i, ts := range []uint64{500, 1000, 700, 1000} {
		if err := a.ledger.SubmitLifeSignal(a.owner, uint64(2000+i), ts); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	for i, ts := range []uint64{1000, 700, 1000, 500} {
		if err := b.ledger.SubmitLifeSignal(b.owner, uint64(2000+i), ts); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	ha, ok := a.ledger.SignalHandle()
	if !ok {
		t.Fatal("aggregate not initialized")
	}

	hb, ok := b.ledger.SignalHandle()
	if !ok {
		t.Fatal("aggregate not initialized")
	}

	if ha != hb {
		t.Error("submission order must not affect the aggregate")
	}

	// The aggregate decrypts to the maximum timestamp
	if value, _ := a.backend.Reveal(ha); value != 1000 {
		t.Errorf("expected aggregate 1000, got %d", value)
	}
}

// TestAggregateNeverRegresses submits a stale timestamp after a fresh
// one and expects the aggregate to keep the fresh value.
func TestAggregateNeverRegresses(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ledger.SubmitLifeSignal(env.owner, 100, 1000); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := env.ledger.SubmitLifeSignal(env.owner, 101, 400); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	h, _ := env.ledger.SignalHandle()
	if value, _ := env.backend.Reveal(h); value != 1000 {
		t.Errorf("stale signal must not regress the aggregate: got %d", value)
	}
}

func TestSetInactivityThreshold(t *testing.T) {
	env := newTestEnv(t)

	if _, ok := env.ledger.ThresholdHandle(); ok {
		t.Error("threshold should start unset")
	}

	if err := env.ledger.SetInactivityThreshold(env.owner, 100, 500); err != nil {
		t.Fatalf("set threshold failed: %v", err)
	}

	h, ok := env.ledger.ThresholdHandle()
	if !ok {
		t.Fatal("threshold not set")
	}

	if value, _ := env.backend.Reveal(h); value != 500 {
		t.Errorf("expected 500, got %d", value)
	}

	// Wholesale overwrite, no aggregation
	if err := env.ledger.SetInactivityThreshold(env.owner, 101, 200); err != nil {
		t.Fatalf("set threshold failed: %v", err)
	}

	h, _ = env.ledger.ThresholdHandle()
	if value, _ := env.backend.Reveal(h); value != 200 {
		t.Errorf("threshold should overwrite, got %d", value)
	}
}

func TestSetInactivityThresholdRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	stranger := Identity{0x99}

	if err := env.ledger.SetInactivityThreshold(stranger, 100, 500); err != ErrNotOwner {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	if _, ok := env.ledger.ThresholdHandle(); ok {
		t.Error("rejected set must leave the threshold unset")
	}
}

func TestSetInactivityThresholdWhilePaused(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ledger.SetPaused(env.owner, 100, true); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	if err := env.ledger.SetInactivityThreshold(env.owner, 101, 500); err != ErrPaused {
		t.Errorf("expected ErrPaused, got %v", err)
	}
}
