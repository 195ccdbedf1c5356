package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeebo/blake3"

	"Vigil/internal/api"
	"Vigil/internal/fhe"
	"Vigil/internal/ledger"
	"Vigil/internal/logger"
	"Vigil/internal/oracle"
	"Vigil/internal/records"
	"Vigil/internal/storage"
	"Vigil/internal/transport"
)

const (
	// dialTimeout bounds the initial oracle connection attempt.
	dialTimeout = 10 * time.Second
)

// Node represents a running Vigil node.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	backend *fhe.Masked
	ledger  *ledger.Ledger
	records *records.Store
	api     *api.Server
	link    *transport.Link // link is nil when running the in-process oracle
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initBackend(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initLedger(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	dbPath := n.cfg.DataPath + "/db"

	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initBackend initializes the masked-arithmetic backend.
func (n *Node) initBackend() error {
	seed, err := hex.DecodeString(n.cfg.SeedHex)
	if err != nil {
		return fmt.Errorf("decode seed:\n%w", err)
	}

	backend, err := fhe.NewMasked(seed)
	if err != nil {
		return fmt.Errorf("init backend:\n%w", err)
	}

	n.backend = backend

	return nil
}

// initLedger wires the oracle boundary and creates the state machine.
func (n *Node) initLedger() error {
	owner, err := n.ownerIdentity()
	if err != nil {
		return err
	}

	submitter, verifier, err := n.initOracle()
	if err != nil {
		return err
	}

	cfg := ledger.Config{
		Identity:        deriveIdentity(owner),
		Owner:           owner,
		CooldownSeconds: n.cfg.CooldownSeconds,
	}

	events := ledger.NewEventLog(n.storage)
	n.ledger = ledger.New(cfg, n.backend, submitter, verifier, n.storage, events)
	n.records = records.NewStore(n.storage)

	return nil
}

// initOracle connects the remote oracle or starts the in-process one.
func (n *Node) initOracle() (ledger.Submitter, ledger.AttestationVerifier, error) {
	if n.cfg.OracleAddress == "" {
		return n.initLocalOracle()
	}

	oraclePubKey, err := hex.DecodeString(n.cfg.OraclePubKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decode oracle pubkey:\n%w", err)
	}

	verifier, err := oracle.NewVerifier(oraclePubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create verifier:\n%w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	link, err := transport.Dial(ctx, n.cfg.OracleAddress, n.cfg.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to oracle:\n%w", err)
	}

	// Callback handler must be attached before streams are served.
	link.OnMessage(n.handleCallback)
	link.Start()

	n.link = link

	return transport.NewRemoteOracle(link, n.backend), verifier, nil
}

// initLocalOracle runs the oracle in-process, deriving its attestation
// key from the node's own transport key. Useful for development and
// single-operator deployments.
func (n *Node) initLocalOracle() (ledger.Submitter, ledger.AttestationVerifier, error) {
	key, err := oracle.DeriveFromED25519(n.cfg.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("derive attestation key:\n%w", err)
	}

	service := oracle.NewService(n.backend, key)

	verifier, err := oracle.NewVerifier(service.PublicKeyBytes())
	if err != nil {
		return nil, nil, fmt.Errorf("create verifier:\n%w", err)
	}

	logger.Info("running in-process oracle",
		"attest_pubkey", hex.EncodeToString(service.PublicKeyBytes()[:8]),
	)

	return &localDispatcher{node: n, service: service}, verifier, nil
}

// handleCallback processes a pushed oracle result frame.
func (n *Node) handleCallback(data []byte) {
	requestID, cleartexts, proof, err := transport.DecodeCallback(data)
	if err != nil {
		logger.Warn("malformed callback frame", "error", err)
		return
	}

	n.applyResult(requestID, cleartexts, proof)
}

// applyResult feeds a decryption result into the ledger and logs the
// outcome. Rejections are expected protocol events, not node faults.
func (n *Node) applyResult(requestID uint64, cleartexts, proof []byte) {
	now := uint64(time.Now().Unix())

	decision, err := n.ledger.OnDecryptionResult(requestID, now, cleartexts, proof)
	if err != nil {
		logger.Warn("decryption result rejected", "request_id", requestID, "error", err)
		return
	}

	logger.Info("decryption completed",
		"request_id", decision.RequestID,
		"batch", decision.Batch,
		"triggered", decision.Triggered,
	)
}

// ownerIdentity resolves the initial owner from config, defaulting to
// the node's own public key.
func (n *Node) ownerIdentity() (ledger.Identity, error) {
	var owner ledger.Identity

	if n.cfg.OwnerHex == "" {
		pubKey := n.cfg.PrivateKey.Public().(ed25519.PublicKey)
		copy(owner[:], pubKey)

		return owner, nil
	}

	decoded, err := hex.DecodeString(n.cfg.OwnerHex)
	if err != nil || len(decoded) != len(owner) {
		return owner, fmt.Errorf("invalid owner identity")
	}

	copy(owner[:], decoded)

	return owner, nil
}

// deriveIdentity computes the ledger identity mixed into binding
// hashes: blake3("vigil-identity-v1" || owner).
func deriveIdentity(owner ledger.Identity) ledger.Hash {
	h := blake3.New()
	h.Write([]byte("vigil-identity-v1"))
	h.Write(owner[:])

	var out ledger.Hash
	h.Sum(out[:0])

	return out
}

// Run starts the node and blocks until shutdown signal.
func (n *Node) Run() error {
	n.api = api.New(n.cfg.HTTPAddress, n.ledger, n.records, n.storage, nil)
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.link != nil {
		n.link.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}

// localDispatcher adapts the in-process oracle service to the ledger's
// submitter boundary. Each accepted request is answered asynchronously
// so the callback arrives after the requesting operation commits, the
// same shape a remote oracle produces.
type localDispatcher struct {
	node    *Node
	service *oracle.Service
}

// SubmitDecryptionRequest forwards to the service and schedules the
// answer delivery.
func (d *localDispatcher) SubmitDecryptionRequest(handles []fhe.Handle) (uint64, error) {
	requestID, err := d.service.SubmitDecryptionRequest(handles)
	if err != nil {
		return 0, err
	}

	go d.deliver(requestID)

	return requestID, nil
}

// deliver answers the request and applies the result to the ledger.
// The ledger mutex guarantees this runs after the requesting operation
// has stored its decryption context.
func (d *localDispatcher) deliver(requestID uint64) {
	cleartexts, proof, err := d.service.Answer(requestID)
	if err != nil {
		logger.Warn("local oracle answer failed", "request_id", requestID, "error", err)
		return
	}

	d.node.applyResult(requestID, cleartexts, proof)
}
