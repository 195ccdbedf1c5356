package ledger

import "errors"

// Every failure below aborts the triggering call atomically: a rejected
// operation leaves all ledger state untouched. None are retried by the
// ledger itself; retry is the caller's responsibility.
var (
	// ErrNotOwner is returned when an owner-only operation is called by
	// anyone other than the current owner.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrNotProvider is returned when a signal submission comes from an
	// unauthorized identity.
	ErrNotProvider = errors.New("caller is not an authorized provider")

	// ErrPaused is returned when the ledger is paused.
	ErrPaused = errors.New("ledger is paused")

	// ErrBatchClosed is returned when the current batch is closed and a
	// data-plane operation is attempted.
	ErrBatchClosed = errors.New("current batch is closed or invalid")

	// ErrCooldownActive is returned when a caller acts again before its
	// per-action-class cooldown has elapsed.
	ErrCooldownActive = errors.New("cooldown still active")

	// ErrInvalidThreshold is returned when a threshold does not reach a
	// valid encrypted representation, or when an inactivity check is
	// triggered before both encrypted values are initialized.
	ErrInvalidThreshold = errors.New("threshold is not a valid encrypted value")

	// ErrUnknownRequest is returned for a callback naming a request id
	// that was never issued by this ledger.
	ErrUnknownRequest = errors.New("unknown decryption request")

	// ErrDuplicateRequest is returned when the oracle assigns a request
	// id that is already bound to a stored decryption context.
	ErrDuplicateRequest = errors.New("request id already bound to a context")

	// ErrReplayDetected is returned when a decryption result is
	// delivered for an already-processed request.
	ErrReplayDetected = errors.New("decryption request already processed")

	// ErrStateMismatch is returned when the callback-time state hash
	// differs from the snapshot taken at request time.
	ErrStateMismatch = errors.New("state hash mismatch between request and callback")

	// ErrDecryptionFailed is returned when the oracle attestation does
	// not verify or the cleartext blob is malformed.
	ErrDecryptionFailed = errors.New("decryption attestation verification failed")
)
