package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"Vigil/internal/ledger"
	"Vigil/internal/logger"
	"Vigil/internal/records"
	"Vigil/internal/storage"
)

const (
	// maxTxSize is the maximum transaction envelope size in bytes.
	maxTxSize = 1 << 16 // 64 KB
)

// Clock supplies the ledger time for incoming transactions.
type Clock func() uint64

// Server is the HTTP API server.
type Server struct {
	addr    string          // addr is the HTTP listen address
	ledger  *ledger.Ledger  // ledger is the state machine transactions apply to
	records *records.Store  // records serves the inheritance record surface
	db      *storage.Storage // db backs the event read endpoint
	clock   Clock           // clock supplies transaction time
	server  *http.Server    // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, l *ledger.Ledger, recs *records.Store, db *storage.Storage, clock Clock) *Server {
	if clock == nil {
		clock = func() uint64 { return uint64(time.Now().Unix()) }
	}

	return &Server{
		addr:    addr,
		ledger:  l,
		records: recs,
		db:      db,
		clock:   clock,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", s.handleTx)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /context/{id}", s.handleContext)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("GET /records/{name}", s.handleGetRecord)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleTx handles POST /tx requests: a signed mutation envelope.
func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}

	caller, err := tx.verify()
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	now := s.clock()

	result, err := s.apply(caller, now, &tx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	logger.Debug("tx applied", "op", tx.Op, "actor", hex.EncodeToString(caller[:8]))

	writeJSON(w, http.StatusOK, result)
}

// apply dispatches a verified envelope to the matching ledger operation.
func (s *Server) apply(caller ledger.Identity, now uint64, tx *Transaction) (map[string]any, error) {
	switch tx.Op {
	case "submit_signal":
		var args struct {
			Timestamp uint64 `json:"timestamp"`
		}
		if err := decodeArgs(tx.Args, &args); err != nil {
			return nil, err
		}

		if err := s.ledger.SubmitLifeSignal(caller, now, args.Timestamp); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "set_threshold":
		var args struct {
			Seconds uint64 `json:"seconds"`
		}
		if err := decodeArgs(tx.Args, &args); err != nil {
			return nil, err
		}

		if err := s.ledger.SetInactivityThreshold(caller, now, args.Seconds); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "check_trigger":
		requestID, err := s.ledger.CheckInheritanceTrigger(caller, now)
		if err != nil {
			return nil, err
		}

		return map[string]any{"ok": true, "request_id": requestID}, nil

	case "transfer_ownership":
		id, err := decodeIdentityArg(tx.Args, "new_owner")
		if err != nil {
			return nil, err
		}

		if err := s.ledger.TransferOwnership(caller, now, id); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "add_provider":
		id, err := decodeIdentityArg(tx.Args, "provider")
		if err != nil {
			return nil, err
		}

		if err := s.ledger.AddProvider(caller, now, id); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "remove_provider":
		id, err := decodeIdentityArg(tx.Args, "provider")
		if err != nil {
			return nil, err
		}

		if err := s.ledger.RemoveProvider(caller, now, id); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "set_paused":
		var args struct {
			Paused bool `json:"paused"`
		}
		if err := decodeArgs(tx.Args, &args); err != nil {
			return nil, err
		}

		if err := s.ledger.SetPaused(caller, now, args.Paused); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "set_cooldown":
		var args struct {
			Seconds uint64 `json:"seconds"`
		}
		if err := decodeArgs(tx.Args, &args); err != nil {
			return nil, err
		}

		if err := s.ledger.SetCooldown(caller, now, args.Seconds); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "open_batch":
		batch, err := s.ledger.OpenNewBatch(caller, now)
		if err != nil {
			return nil, err
		}

		return map[string]any{"ok": true, "batch": batch}, nil

	case "close_batch":
		if err := s.ledger.CloseCurrentBatch(caller, now); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "put_record":
		var rec records.Record
		if err := decodeArgs(tx.Args, &rec); err != nil {
			return nil, err
		}

		// Records are owner-curated payload, not ledger state.
		if caller != s.ledger.Owner() {
			return nil, ledger.ErrNotOwner
		}

		rec.UpdatedAt = now

		if err := s.records.Put(rec); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	case "delete_record":
		var args struct {
			Name string `json:"name"`
		}
		if err := decodeArgs(tx.Args, &args); err != nil {
			return nil, err
		}

		if caller != s.ledger.Owner() {
			return nil, ledger.ErrNotOwner
		}

		if err := s.records.Delete(args.Name); err != nil {
			return nil, err
		}

		return map[string]any{"ok": true}, nil

	default:
		return nil, errUnknownOp
	}
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests. Encrypted state surfaces
// only as opaque handles.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner := s.ledger.Owner()
	batch := s.ledger.CurrentBatch()

	status := map[string]any{
		"owner":       hex.EncodeToString(owner[:]),
		"paused":      s.ledger.Paused(),
		"cooldown":    s.ledger.CooldownSeconds(),
		"batch":       batch,
		"batchClosed": s.ledger.BatchClosed(batch),
	}

	if h, ok := s.ledger.SignalHandle(); ok {
		status["signalHandle"] = hex.EncodeToString(h[:])
	}

	if h, ok := s.ledger.ThresholdHandle(); ok {
		status["thresholdHandle"] = hex.EncodeToString(h[:])
	}

	writeJSON(w, http.StatusOK, status)
}

// handleContext handles GET /context/{id} requests.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	ctx, ok := s.ledger.Context(requestID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown request id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestId": requestID,
		"batch":     ctx.Batch,
		"stateHash": hex.EncodeToString(ctx.StateHash[:]),
		"processed": ctx.Processed,
	})
}

// handleEvents handles GET /events requests.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := ledger.Events(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "event read failed")
		return
	}

	if events == nil {
		events = []ledger.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// handleListRecords handles GET /records requests.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "record read failed")
		return
	}

	if recs == nil {
		recs = []records.Record{}
	}

	writeJSON(w, http.StatusOK, recs)
}

// handleGetRecord handles GET /records/{name} requests.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.records.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// errUnknownOp rejects envelopes naming no known operation.
var errUnknownOp = errors.New("unknown operation")

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotOwner), errors.Is(err, ledger.ErrNotProvider):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrPaused), errors.Is(err, ledger.ErrBatchClosed),
		errors.Is(err, ledger.ErrStateMismatch), errors.Is(err, ledger.ErrReplayDetected),
		errors.Is(err, ledger.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrInvalidThreshold), errors.Is(err, errUnknownOp):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnknownRequest):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeArgs unmarshals envelope args into the target struct.
func decodeArgs(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return errors.New("missing args")
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return errors.New("invalid args")
	}

	return nil
}

// decodeIdentityArg extracts a hex identity from the named args field.
func decodeIdentityArg(raw json.RawMessage, field string) (ledger.Identity, error) {
	var args map[string]string
	if err := decodeArgs(raw, &args); err != nil {
		return ledger.Identity{}, err
	}

	decoded, err := hex.DecodeString(args[field])
	if err != nil || len(decoded) != len(ledger.Identity{}) {
		return ledger.Identity{}, errors.New("invalid identity: " + field)
	}

	var id ledger.Identity
	copy(id[:], decoded)

	return id, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
