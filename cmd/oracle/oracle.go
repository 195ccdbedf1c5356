package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"Vigil/internal/fhe"
	"Vigil/internal/logger"
	"Vigil/internal/oracle"
	"Vigil/internal/transport"
)

// Oracle is a running decryption oracle daemon. It accepts decryption
// requests over QUIC links, verifies that transmitted payloads match
// the handles the ledger committed to, and pushes attested results
// back asynchronously.
type Oracle struct {
	cfg     *Config
	backend *fhe.Masked
	key     *oracle.KeyPair
	server  *transport.Server

	mu     sync.Mutex
	nextID uint64
}

// NewOracle creates and initializes the oracle daemon.
func NewOracle(cfg *Config) (*Oracle, error) {
	seed, err := hex.DecodeString(cfg.SeedHex)
	if err != nil {
		return nil, fmt.Errorf("decode seed:\n%w", err)
	}

	backend, err := fhe.NewMasked(seed)
	if err != nil {
		return nil, fmt.Errorf("init backend:\n%w", err)
	}

	key, err := oracle.DeriveFromED25519(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("derive attestation key:\n%w", err)
	}

	return &Oracle{
		cfg:     cfg,
		backend: backend,
		key:     key,
		nextID:  1,
	}, nil
}

// AttestPublicKey returns the compressed BLS attestation public key.
func (o *Oracle) AttestPublicKey() []byte {
	return o.key.PublicKeyBytes()
}

// Run starts the QUIC listener and blocks until shutdown signal.
func (o *Oracle) Run() error {
	server, err := transport.Listen(o.cfg.QUICAddress, o.cfg.PrivateKey, o.onConnect)
	if err != nil {
		return fmt.Errorf("start listener:\n%w", err)
	}

	o.server = server
	logger.Info("oracle listening", "addr", server.Addr())

	return o.waitForShutdown()
}

// onConnect attaches handlers to a newly accepted node link.
func (o *Oracle) onConnect(link *transport.Link) {
	logger.Info("node connected", "pubkey", hex.EncodeToString(link.RemotePublicKey()[:8]))

	link.OnRequest(func(data []byte) ([]byte, error) {
		return o.handleRequest(link, data)
	})
}

// handleRequest serves one decryption request: validate, assign an id,
// respond with the id, then push the attested result over a separate
// stream. The two-step shape mirrors the asynchronous callback protocol
// the ledger expects.
func (o *Oracle) handleRequest(link *transport.Link, data []byte) ([]byte, error) {
	items, err := transport.DecodeDecryptRequest(data)
	if err != nil {
		return nil, fmt.Errorf("decode request:\n%w", err)
	}

	values := make([]uint64, len(items))

	for i, item := range items {
		// The handle is the ledger's commitment: a payload that does
		// not hash to it was substituted in transit.
		if fhe.HandleOf(item.Payload) != item.Handle {
			return nil, fmt.Errorf("payload does not match handle at position %d", i)
		}

		value, err := o.backend.DecryptPayload(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt payload %d:\n%w", i, err)
		}

		values[i] = value
	}

	if len(values) != 3 {
		return nil, fmt.Errorf("invalid handle count: got %d, want 3", len(values))
	}

	o.mu.Lock()
	requestID := o.nextID
	o.nextID++
	o.mu.Unlock()

	cleartexts := oracle.EncodeCleartexts(values[0], values[1], values[2] == 1)
	proof := o.key.Attest(requestID, cleartexts)

	logger.Info("decryption request served",
		"request_id", requestID,
		"triggered", values[2] == 1,
	)

	go o.deliverCallback(link, requestID, cleartexts, proof)

	return transport.EncodeRequestID(requestID), nil
}

// deliverCallback pushes the attested result to the node.
func (o *Oracle) deliverCallback(link *transport.Link, requestID uint64, cleartexts, proof []byte) {
	frame := transport.EncodeCallback(requestID, cleartexts, proof)

	if err := link.Send(frame); err != nil {
		logger.Warn("callback delivery failed", "request_id", requestID, "error", err)
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (o *Oracle) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return o.server.Close()
}
