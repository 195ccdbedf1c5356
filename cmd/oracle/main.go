package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"Vigil/internal/logger"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	var err error
	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	oracle, err := NewOracle(cfg)
	if err != nil {
		return fmt.Errorf("create oracle:\n%w", err)
	}

	printStartupInfo(cfg, oracle)

	return oracle.Run()
}

// printStartupInfo displays oracle configuration at startup. The BLS
// public key is what node operators configure as -oracle-pubkey.
func printStartupInfo(cfg *Config, o *Oracle) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)

	logger.Info("starting Vigil oracle",
		"pubkey", hex.EncodeToString(pubKey),
		"attest_pubkey", hex.EncodeToString(o.AttestPublicKey()),
		"quic", cfg.QUICAddress,
	)
}
