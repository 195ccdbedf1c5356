package ledger

import (
	"sync"

	"Vigil/internal/fhe"
	"Vigil/internal/storage"
)

// Hash is a 32-byte identifier.
type Hash [32]byte

// Identity is a 32-byte caller identity (an ed25519 public key).
type Identity [32]byte

// Submitter is the outbound oracle boundary: the ledger hands over an
// ordered handle set and receives a request id.
type Submitter interface {
	SubmitDecryptionRequest(handles []fhe.Handle) (uint64, error)
}

// AttestationVerifier checks the oracle's proof over a callback.
type AttestationVerifier interface {
	Verify(requestID uint64, cleartexts, proof []byte) bool
}

// Config holds the parameters for a new ledger.
type Config struct {
	// Identity is the ledger's own identity, mixed into every binding
	// hash to prevent cross-ledger replay of decryption responses.
	Identity Hash

	// Owner is the initial owner identity.
	Owner Identity

	// CooldownSeconds is the initial per-caller cooldown interval.
	CooldownSeconds uint64
}

// Ledger is the confidential dead-man's-switch state machine. All
// state transitions are serialized by a single mutex, mirroring the
// sequential execution model of the host: each operation either
// completes atomically or fails with no partial mutation.
type Ledger struct {
	mu sync.Mutex

	arith    fhe.Arithmetic
	oracle   Submitter
	verifier AttestationVerifier
	events   EventLog
	identity Hash

	// Access control and configuration.
	owner     Identity
	providers map[Identity]bool
	paused    bool
	cooldown  uint64 // cooldown is the per-caller interval in seconds

	// Per-caller rate-limit bookkeeping, one bucket per action class.
	lastSignalAt map[Identity]uint64
	lastCheckAt  map[Identity]uint64

	// Batch lifecycle.
	batch  uint64          // batch is the current batch id, monotonic from 1
	closed map[uint64]bool // closed marks batches explicitly closed

	// Encrypted state. Both start uninitialized.
	lastSignal fhe.Ciphertext
	threshold  fhe.Ciphertext

	contexts *contextStore
}

// New creates a ledger with batch 1 open and the owner enrolled as the
// initial authorized provider.
func New(cfg Config, arith fhe.Arithmetic, oracle Submitter, verifier AttestationVerifier, db *storage.Storage, events EventLog) *Ledger {
	return &Ledger{
		arith:        arith,
		oracle:       oracle,
		verifier:     verifier,
		events:       events,
		identity:     cfg.Identity,
		owner:        cfg.Owner,
		providers:    map[Identity]bool{cfg.Owner: true},
		cooldown:     cfg.CooldownSeconds,
		lastSignalAt: make(map[Identity]uint64),
		lastCheckAt:  make(map[Identity]uint64),
		batch:        1,
		closed:       make(map[uint64]bool),
		contexts:     newContextStore(db),
	}
}

// Owner returns the current owner identity.
func (l *Ledger) Owner() Identity {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.owner
}

// IsProvider reports whether id is an authorized signal provider.
func (l *Ledger) IsProvider(id Identity) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.providers[id]
}

// Paused reports whether the ledger is paused.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.paused
}

// CooldownSeconds returns the configured cooldown interval.
func (l *Ledger) CooldownSeconds() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cooldown
}

// CurrentBatch returns the current batch id.
func (l *Ledger) CurrentBatch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.batch
}

// BatchClosed reports whether the given batch id is closed.
func (l *Ledger) BatchClosed(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed[id]
}

// LastSubmissionTime returns the recorded last signal-submission time
// for a caller. Returns zero if the caller never submitted.
func (l *Ledger) LastSubmissionTime(id Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastSignalAt[id]
}

// LastRequestTime returns the recorded last decryption-request time
// for a caller. Returns zero if the caller never requested.
func (l *Ledger) LastRequestTime(id Identity) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastCheckAt[id]
}

// Context returns the decryption context for a request id.
func (l *Ledger) Context(requestID uint64) (DecryptionContext, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.contexts.get(requestID)
}

// SignalHandle returns the opaque handle of the encrypted aggregate.
// Returns false if no signal was ever accepted. Ciphertext contents
// are never exposed.
func (l *Ledger) SignalHandle() (fhe.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.arith.IsInitialized(l.lastSignal) {
		return fhe.Handle{}, false
	}

	return l.arith.Handle(l.lastSignal), true
}

// ThresholdHandle returns the opaque handle of the encrypted threshold.
// Returns false if the threshold was never set.
func (l *Ledger) ThresholdHandle() (fhe.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.arith.IsInitialized(l.threshold) {
		return fhe.Handle{}, false
	}

	return l.arith.Handle(l.threshold), true
}

// emit appends an event to the audit trail if a log is configured.
func (l *Ledger) emit(e Event) {
	if l.events != nil {
		l.events.Append(e)
	}
}

// cooldownElapsed reports whether a caller may act again at time now
// given its last action time. A zero last time means never acted.
func (l *Ledger) cooldownElapsed(last, now uint64) bool {
	if last == 0 {
		return true
	}

	return now >= last+l.cooldown
}
