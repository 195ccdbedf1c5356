package fhe

// HandleSize is the size of a serialized ciphertext handle in bytes.
const HandleSize = 32

// Handle is the opaque 32-byte identifier of a ciphertext.
// Handles are a pure function of the ciphertext payload, so two parties
// computing the same ciphertext derive the same handle.
type Handle [HandleSize]byte

// Ciphertext is an encrypted 64-bit value. The payload layout is
// backend-defined; an empty payload means the value is uninitialized.
type Ciphertext struct {
	payload []byte
}

// Payload returns the raw backend-defined payload bytes.
func (c Ciphertext) Payload() []byte {
	return c.payload
}

// Arithmetic is the encrypted-arithmetic capability consumed by the
// ledger. The ledger never inspects ciphertext contents; it only
// combines them through this interface and binds them by handle.
type Arithmetic interface {
	// Wrap lifts a cleartext 64-bit value into the encrypted domain.
	Wrap(value uint64) Ciphertext

	// Max returns the encrypted maximum of a and b.
	Max(a, b Ciphertext) Ciphertext

	// Sub returns the encrypted difference a - b.
	Sub(a, b Ciphertext) Ciphertext

	// CompareGE returns an encrypted boolean for a >= b.
	CompareGE(a, b Ciphertext) Ciphertext

	// IsInitialized reports whether c holds a valid encrypted value.
	IsInitialized(c Ciphertext) bool

	// Handle serializes c to its 32-byte handle and registers the
	// ciphertext so the handle can later be resolved for decryption.
	Handle(c Ciphertext) Handle
}
