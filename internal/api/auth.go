package api

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"

	"Vigil/internal/ledger"
)

// txSigningTag is the domain separation tag for transaction signatures.
var txSigningTag = []byte("vigil-tx-v1")

// Transaction is the signed mutation envelope accepted on POST /tx.
// The signature covers (op, time, args) so an envelope cannot be
// replayed as a different operation or with altered arguments.
type Transaction struct {
	Op        string          `json:"op"`
	Time      uint64          `json:"time"`
	Args      json.RawMessage `json:"args,omitempty"`
	PublicKey string          `json:"pubkey"`
	Signature string          `json:"signature"`
}

// verify checks the envelope signature and returns the caller identity.
func (t *Transaction) verify() (ledger.Identity, error) {
	pubKey, err := hex.DecodeString(t.PublicKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return ledger.Identity{}, fmt.Errorf("invalid public key")
	}

	sig, err := hex.DecodeString(t.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ledger.Identity{}, fmt.Errorf("invalid signature encoding")
	}

	digest := SigningDigest(t.Op, t.Time, t.Args)

	if !ed25519.Verify(pubKey, digest, sig) {
		return ledger.Identity{}, fmt.Errorf("signature verification failed")
	}

	var caller ledger.Identity
	copy(caller[:], pubKey)

	return caller, nil
}

// SigningDigest computes the digest a client signs for an envelope:
// blake3(tag || op || "|" || time || "|" || raw args).
func SigningDigest(op string, time uint64, args json.RawMessage) []byte {
	h := blake3.New()
	h.Write(txSigningTag)
	h.Write([]byte(op))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatUint(time, 10)))
	h.Write([]byte("|"))
	h.Write(args)

	var out [32]byte
	h.Sum(out[:0])

	return out[:]
}

// SignTransaction builds a signed envelope for the given key.
// Used by clients and tests; the server only verifies.
func SignTransaction(key ed25519.PrivateKey, op string, time uint64, args json.RawMessage) Transaction {
	sig := ed25519.Sign(key, SigningDigest(op, time, args))
	pubKey := key.Public().(ed25519.PublicKey)

	return Transaction{
		Op:        op,
		Time:      time,
		Args:      args,
		PublicKey: hex.EncodeToString(pubKey),
		Signature: hex.EncodeToString(sig),
	}
}
