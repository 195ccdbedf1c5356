package oracle

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func newTestKey(t *testing.T) *KeyPair {
	t.Helper()

	key, err := GenerateKeyFromSeed([]byte("attest-test-seed-0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	return key
}

func TestAttestVerifyRoundtrip(t *testing.T) {
	key := newTestKey(t)

	verifier, err := NewVerifier(key.PublicKeyBytes())
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	cleartexts := EncodeCleartexts(1000, 500, true)
	proof := key.Attest(7, cleartexts)

	if len(proof) != SignatureSize {
		t.Errorf("expected %d-byte proof, got %d", SignatureSize, len(proof))
	}

	if !verifier.Verify(7, cleartexts, proof) {
		t.Error("valid attestation rejected")
	}
}

func TestVerifyRejectsWrongRequestID(t *testing.T) {
	key := newTestKey(t)
	verifier, _ := NewVerifier(key.PublicKeyBytes())

	cleartexts := EncodeCleartexts(1000, 500, true)
	proof := key.Attest(7, cleartexts)

	if verifier.Verify(8, cleartexts, proof) {
		t.Error("attestation must bind the request id")
	}
}

func TestVerifyRejectsTamperedCleartexts(t *testing.T) {
	key := newTestKey(t)
	verifier, _ := NewVerifier(key.PublicKeyBytes())

	cleartexts := EncodeCleartexts(1000, 500, false)
	proof := key.Attest(7, cleartexts)

	cleartexts[16] = 1

	if verifier.Verify(7, cleartexts, proof) {
		t.Error("attestation must bind the cleartexts")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key := newTestKey(t)

	other, err := GenerateKeyFromSeed([]byte("another-attest-seed-9876543210zyxw"))
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	verifier, _ := NewVerifier(other.PublicKeyBytes())

	cleartexts := EncodeCleartexts(1000, 500, true)
	proof := key.Attest(7, cleartexts)

	if verifier.Verify(7, cleartexts, proof) {
		t.Error("attestation from a different key must be rejected")
	}
}

func TestVerifyRejectsMalformedProof(t *testing.T) {
	key := newTestKey(t)
	verifier, _ := NewVerifier(key.PublicKeyBytes())

	cleartexts := EncodeCleartexts(1000, 500, true)

	if verifier.Verify(7, cleartexts, []byte{0x01, 0x02}) {
		t.Error("short proof must be rejected")
	}

	garbage := make([]byte, SignatureSize)
	if verifier.Verify(7, cleartexts, garbage) {
		t.Error("garbage proof must be rejected")
	}
}

func TestNewVerifierRejectsBadKeySize(t *testing.T) {
	if _, err := NewVerifier([]byte{0x01}); err == nil {
		t.Error("expected error for wrong key size")
	}
}

func TestDeriveFromED25519Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)

	k1, err := DeriveFromED25519(priv)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	k2, err := DeriveFromED25519(priv)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	if !bytes.Equal(k1.PublicKeyBytes(), k2.PublicKeyBytes()) {
		t.Error("derivation must be deterministic")
	}

	otherPriv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x43}, ed25519.SeedSize))

	k3, err := DeriveFromED25519(otherPriv)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	if bytes.Equal(k1.PublicKeyBytes(), k3.PublicKeyBytes()) {
		t.Error("different transport keys must derive different attestation keys")
	}
}

func TestGenerateKeyFromSeedRejectsShortSeed(t *testing.T) {
	if _, err := GenerateKeyFromSeed([]byte("short")); err == nil {
		t.Error("expected error for short seed")
	}
}
