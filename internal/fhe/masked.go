package fhe

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

const (
	// payloadSize is the size of a masked ciphertext payload in bytes.
	payloadSize = 8
)

// Domain separation tags for key and handle derivation.
var (
	maskKeygenTag = []byte("vigil-mask-keygen")
	handleTag     = []byte("vigil-handle-v1")
)

// Masked is a keyed masked-arithmetic backend standing in for an FHE
// coprocessor. Values are 64-bit words XORed with a pad derived from
// the backend seed. Like a real coprocessor it keeps a handle registry
// so serialized handles can be resolved back to ciphertexts for
// decryption. Only parties holding the seed can reveal values.
type Masked struct {
	pad uint64 // pad is the keystream word derived from the seed

	mu       sync.RWMutex
	registry map[Handle][]byte // registry maps handle to payload
}

// NewMasked creates a masked backend from a seed of at least 16 bytes.
func NewMasked(seed []byte) (*Masked, error) {
	if len(seed) < 16 {
		return nil, fmt.Errorf("seed must be at least 16 bytes")
	}

	h := blake3.New()
	h.Write(maskKeygenTag)
	h.Write(seed)

	var derived [32]byte
	h.Sum(derived[:0])

	return &Masked{
		pad:      binary.LittleEndian.Uint64(derived[:8]),
		registry: make(map[Handle][]byte),
	}, nil
}

// Wrap lifts a cleartext value into the masked domain.
func (m *Masked) Wrap(value uint64) Ciphertext {
	return Ciphertext{payload: m.encode(value)}
}

// Max returns the encrypted maximum of a and b.
func (m *Masked) Max(a, b Ciphertext) Ciphertext {
	va := m.decode(a.payload)
	vb := m.decode(b.payload)

	if va >= vb {
		return Ciphertext{payload: m.encode(va)}
	}

	return Ciphertext{payload: m.encode(vb)}
}

// Sub returns the encrypted difference a - b with wrap-around semantics.
func (m *Masked) Sub(a, b Ciphertext) Ciphertext {
	return Ciphertext{payload: m.encode(m.decode(a.payload) - m.decode(b.payload))}
}

// CompareGE returns an encrypted boolean (0 or 1) for a >= b.
func (m *Masked) CompareGE(a, b Ciphertext) Ciphertext {
	if m.decode(a.payload) >= m.decode(b.payload) {
		return Ciphertext{payload: m.encode(1)}
	}

	return Ciphertext{payload: m.encode(0)}
}

// IsInitialized reports whether c holds a valid masked payload.
func (m *Masked) IsInitialized(c Ciphertext) bool {
	return len(c.payload) == payloadSize
}

// Handle serializes c to its handle and registers the ciphertext for
// later resolution. The handle is a pure function of the payload.
func (m *Masked) Handle(c Ciphertext) Handle {
	h := HandleOf(c.payload)

	payload := make([]byte, len(c.payload))
	copy(payload, c.payload)

	m.mu.Lock()
	m.registry[h] = payload
	m.mu.Unlock()

	return h
}

// Lookup resolves a handle to its registered payload.
// Returns false if the handle was never registered on this backend.
func (m *Masked) Lookup(h Handle) ([]byte, bool) {
	m.mu.RLock()
	payload, ok := m.registry[h]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	result := make([]byte, len(payload))
	copy(result, payload)

	return result, true
}

// Reveal resolves a handle and decrypts its value.
// Returns false if the handle is unknown.
func (m *Masked) Reveal(h Handle) (uint64, bool) {
	payload, ok := m.Lookup(h)
	if !ok {
		return 0, false
	}

	return m.decode(payload), true
}

// DecryptPayload decrypts a raw payload without registry lookup.
// Used by oracle-side processing where payloads arrive over the wire.
func (m *Masked) DecryptPayload(payload []byte) (uint64, error) {
	if len(payload) != payloadSize {
		return 0, fmt.Errorf("invalid payload size: got %d, want %d", len(payload), payloadSize)
	}

	return m.decode(payload), nil
}

// encode masks a value into a payload.
func (m *Masked) encode(value uint64) []byte {
	payload := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(payload, value^m.pad)

	return payload
}

// decode unmasks a payload. Uninitialized payloads decode to zero.
func (m *Masked) decode(payload []byte) uint64 {
	if len(payload) != payloadSize {
		return 0
	}

	return binary.LittleEndian.Uint64(payload) ^ m.pad
}

// HandleOf computes the handle for a payload: blake3(tag || payload).
// Both the ciphertext holder and the oracle derive handles this way,
// which lets the oracle check that a transmitted payload matches the
// handle the ledger committed to.
func HandleOf(payload []byte) Handle {
	h := blake3.New()
	h.Write(handleTag)
	h.Write(payload)

	var out Handle
	h.Sum(out[:0])

	return out
}
