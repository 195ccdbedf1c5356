package transport

import (
	"context"
	"fmt"
	"time"

	"Vigil/internal/fhe"
)

// submitTimeout bounds one decryption submission round trip.
const submitTimeout = 10 * time.Second

// RemoteOracle submits decryption requests to an out-of-process
// oracle over a Link. It resolves each committed handle to its
// ciphertext payload through the local backend registry before
// transmission, since the oracle only ever sees opaque bytes.
type RemoteOracle struct {
	link    *Link
	backend *fhe.Masked
}

// NewRemoteOracle creates a remote oracle client on the given link.
func NewRemoteOracle(link *Link, backend *fhe.Masked) *RemoteOracle {
	return &RemoteOracle{
		link:    link,
		backend: backend,
	}
}

// SubmitDecryptionRequest transmits the handle set with its payloads
// and returns the oracle-assigned request id.
func (r *RemoteOracle) SubmitDecryptionRequest(handles []fhe.Handle) (uint64, error) {
	items := make([]HandlePayload, len(handles))

	for i, h := range handles {
		payload, ok := r.backend.Lookup(h)
		if !ok {
			return 0, fmt.Errorf("unresolvable handle at position %d", i)
		}

		items[i] = HandlePayload{Handle: h, Payload: payload}
	}

	frame, err := EncodeDecryptRequest(items)
	if err != nil {
		return 0, fmt.Errorf("encode request:\n%w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	response, err := r.link.Request(ctx, frame)
	if err != nil {
		return 0, fmt.Errorf("submit to oracle:\n%w", err)
	}

	return DecodeRequestID(response)
}
