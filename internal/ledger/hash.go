package ledger

import (
	"github.com/zeebo/blake3"

	"Vigil/internal/fhe"
)

// bindingTag is the domain separation tag for binding hashes.
var bindingTag = []byte("vigil-binding-v1")

// bindingHash computes the hash committing a decryption request to an
// exact ordered ciphertext-handle set and this ledger's identity.
// Including the identity prevents cross-ledger replay of a response.
//
// The callback path recomputes this hash from live state and requires
// exact equality with the request-time snapshot, so the result must be
// a pure function of the handles and identity, with no other inputs.
func bindingHash(handles []fhe.Handle, identity Hash) Hash {
	h := blake3.New()
	h.Write(bindingTag)

	for _, handle := range handles {
		h.Write(handle[:])
	}

	h.Write(identity[:])

	var out Hash
	h.Sum(out[:0])

	return out
}
