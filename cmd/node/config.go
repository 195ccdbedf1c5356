package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// OracleAddress is the QUIC address of the decryption oracle.
	// Empty runs an in-process oracle, useful for development.
	OracleAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 signing key.
	PrivateKey ed25519.PrivateKey

	// OwnerHex is the hex-encoded initial owner identity. Defaults to
	// the node's own public key.
	OwnerHex string

	// OraclePubKeyHex is the hex-encoded BLS attestation public key of
	// the remote oracle. Required when OracleAddress is set.
	OraclePubKeyHex string

	// SeedHex is the hex-encoded masked-backend seed shared with the
	// oracle.
	SeedHex string

	// CooldownSeconds is the initial per-caller cooldown interval.
	CooldownSeconds uint64
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.OracleAddress, "oracle", "", "Oracle QUIC address (empty runs an in-process oracle)")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.OwnerHex, "owner", "", "Initial owner identity (hex, defaults to node pubkey)")
	flag.StringVar(&cfg.OraclePubKeyHex, "oracle-pubkey", "", "Oracle BLS attestation public key (hex)")
	flag.StringVar(&cfg.SeedHex, "seed", "", "Masked backend seed (hex, at least 16 bytes)")
	flag.Uint64Var(&cfg.CooldownSeconds, "cooldown", 60, "Per-caller cooldown interval in seconds")
	flag.Parse()

	return cfg
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
