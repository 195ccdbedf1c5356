package oracle

import (
	"encoding/binary"
	"fmt"
	"sync"

	"Vigil/internal/fhe"
	"Vigil/internal/logger"
)

// requestHandleCount is the number of handles in a decryption request:
// last-signal timestamp, threshold, trigger — in that fixed order.
const requestHandleCount = 3

// Service is a decryption oracle backed by a masked-arithmetic
// backend. It resolves committed handles to ciphertexts, decrypts them
// and attests the cleartext result with a BLS signature.
//
// Request ids are assigned monotonically; a request stays pending
// until answered, mirroring the asynchronous two-transaction shape of
// the on-ledger protocol.
type Service struct {
	backend *fhe.Masked
	key     *KeyPair

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64][]fhe.Handle
}

// NewService creates an oracle over the given backend and signing key.
func NewService(backend *fhe.Masked, key *KeyPair) *Service {
	return &Service{
		backend: backend,
		key:     key,
		nextID:  1,
		pending: make(map[uint64][]fhe.Handle),
	}
}

// SubmitDecryptionRequest accepts an ordered handle set and returns
// the assigned request id.
func (s *Service) SubmitDecryptionRequest(handles []fhe.Handle) (uint64, error) {
	if len(handles) != requestHandleCount {
		return 0, fmt.Errorf("invalid handle count: got %d, want %d", len(handles), requestHandleCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	pending := make([]fhe.Handle, len(handles))
	copy(pending, handles)
	s.pending[id] = pending

	logger.Debug("decryption request accepted", "request_id", id)

	return id, nil
}

// Answer decrypts the pending request and returns the fixed-width
// cleartext blob plus the BLS attestation over (requestID, blob).
// Blob layout: 8-byte BE last signal, 8-byte BE threshold, 1-byte
// trigger flag.
func (s *Service) Answer(requestID uint64) (cleartexts, proof []byte, err error) {
	s.mu.Lock()
	handles, ok := s.pending[requestID]
	s.mu.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("unknown request id %d", requestID)
	}

	values := make([]uint64, len(handles))

	for i, h := range handles {
		value, ok := s.backend.Reveal(h)
		if !ok {
			return nil, nil, fmt.Errorf("unresolvable handle at position %d", i)
		}

		values[i] = value
	}

	cleartexts = EncodeCleartexts(values[0], values[1], values[2] == 1)
	proof = s.key.Attest(requestID, cleartexts)

	return cleartexts, proof, nil
}

// PublicKeyBytes returns the oracle's compressed BLS public key.
func (s *Service) PublicKeyBytes() []byte {
	return s.key.PublicKeyBytes()
}

// EncodeCleartexts encodes the decrypted fields in the protocol's
// fixed order and widths.
func EncodeCleartexts(lastSignal, threshold uint64, triggered bool) []byte {
	blob := make([]byte, 17)
	binary.BigEndian.PutUint64(blob[0:8], lastSignal)
	binary.BigEndian.PutUint64(blob[8:16], threshold)

	if triggered {
		blob[16] = 1
	}

	return blob
}
