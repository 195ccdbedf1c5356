package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// PublicKeySize is the size of a BLS public key in bytes.
	PublicKeySize = 48

	// SignatureSize is the size of a BLS signature in bytes.
	SignatureSize = 96
)

// blsDST is the domain separation tag for BLS attestation signatures.
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// attestKeygenTag is the domain separation tag for key derivation.
var attestKeygenTag = []byte("vigil-oracle-keygen")

// KeyPair holds the oracle's BLS attestation key pair.
type KeyPair struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// DeriveFromED25519 derives a deterministic BLS key pair from an
// ed25519 private key, binding the attestation key to the oracle's
// transport identity via BLAKE3(tag || seed).
func DeriveFromED25519(privKey ed25519.PrivateKey) (*KeyPair, error) {
	seed := privKey.Seed()
	h := blake3.New()
	h.Write(attestKeygenTag)
	h.Write(seed)

	var derived [32]byte
	h.Sum(derived[:0])

	return GenerateKeyFromSeed(derived[:])
}

// GenerateKey creates a new BLS key pair from a random seed.
func GenerateKey() (*KeyPair, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return GenerateKeyFromSeed(ikm[:])
}

// GenerateKeyFromSeed creates a BLS key pair from a deterministic seed.
// The seed must be at least 32 bytes.
func GenerateKeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	public := new(blst.P1Affine).From(secret)

	return &KeyPair{
		secret: secret,
		public: public,
	}, nil
}

// Attest signs the (requestID, cleartexts) pair.
func (k *KeyPair) Attest(requestID uint64, cleartexts []byte) []byte {
	sig := new(blst.P2Affine).Sign(k.secret, attestationMessage(requestID, cleartexts), blsDST)
	return sig.Compress()
}

// PublicKeyBytes returns the compressed public key bytes.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.public.Compress()
}

// Verifier checks attestations against a fixed oracle public key.
type Verifier struct {
	publicKey []byte
}

// NewVerifier creates a verifier for the given compressed public key.
func NewVerifier(publicKey []byte) (*Verifier, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: got %d, want %d", len(publicKey), PublicKeySize)
	}

	key := make([]byte, PublicKeySize)
	copy(key, publicKey)

	return &Verifier{publicKey: key}, nil
}

// Verify checks the attestation over exactly this (requestID,
// cleartexts) pair.
func (v *Verifier) Verify(requestID uint64, cleartexts, proof []byte) bool {
	if len(proof) != SignatureSize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(proof)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(v.publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, attestationMessage(requestID, cleartexts), blsDST)
}

// attestationMessage builds the canonical signed message:
// blake3("vigil-attest-v1" || requestID BE64 || cleartexts).
func attestationMessage(requestID uint64, cleartexts []byte) []byte {
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], requestID)

	h := blake3.New()
	h.Write([]byte("vigil-attest-v1"))
	h.Write(idBuf[:])
	h.Write(cleartexts)

	var out [32]byte
	h.Sum(out[:0])

	return out[:]
}
