package ledger

import (
	"encoding/binary"

	"Vigil/internal/storage"
)

// contextKeyPrefix is the Pebble key prefix for decryption contexts.
var contextKeyPrefix = []byte("dc:")

// DecryptionContext is the per-request snapshot recorded when an
// inactivity check is submitted to the oracle. Contexts are never
// deleted; an unanswered request simply stays Processed=false.
type DecryptionContext struct {
	Batch     uint64 // Batch is the batch id at request time
	StateHash Hash   // StateHash binds the exact ciphertext set submitted
	Processed bool   // Processed flips true exactly once, on verified callback
}

// contextStore persists decryption contexts in Pebble keyed by request id.
// Value layout: 8-byte BE batch + 32-byte hash + 1-byte processed flag.
type contextStore struct {
	db *storage.Storage
}

// newContextStore creates a context store backed by the given storage.
func newContextStore(db *storage.Storage) *contextStore {
	return &contextStore{db: db}
}

// get retrieves the context for a request id. Returns false if absent.
func (s *contextStore) get(requestID uint64) (DecryptionContext, bool) {
	value, err := s.db.Get(makeContextKey(requestID))
	if err != nil || len(value) != 41 {
		return DecryptionContext{}, false
	}

	var ctx DecryptionContext
	ctx.Batch = binary.BigEndian.Uint64(value[:8])
	copy(ctx.StateHash[:], value[8:40])
	ctx.Processed = value[40] == 1

	return ctx, true
}

// put stores a context. A request id maps to at most one context for
// its entire lifetime; callers must not overwrite an existing id.
func (s *contextStore) put(requestID uint64, ctx DecryptionContext) error {
	value := make([]byte, 41)
	binary.BigEndian.PutUint64(value[:8], ctx.Batch)
	copy(value[8:40], ctx.StateHash[:])

	if ctx.Processed {
		value[40] = 1
	}

	return s.db.Set(makeContextKey(requestID), value)
}

// markProcessed flips the processed flag for a request id.
func (s *contextStore) markProcessed(requestID uint64) error {
	ctx, ok := s.get(requestID)
	if !ok {
		return ErrUnknownRequest
	}

	ctx.Processed = true

	return s.put(requestID, ctx)
}

// makeContextKey builds the Pebble key for a context: "dc:" + id BE64.
func makeContextKey(requestID uint64) []byte {
	key := make([]byte, len(contextKeyPrefix)+8)
	copy(key, contextKeyPrefix)
	binary.BigEndian.PutUint64(key[len(contextKeyPrefix):], requestID)

	return key
}
