package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
)

// Generates the RS256 key pair the token service signs with.
func main() {
	dir := flag.String("dir", "certs", "output directory for the PEM files")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	keys, err := auth.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}
	privPEM, pubPEM, err := keys.ExportPEM()
	if err != nil {
		log.Fatalf("Failed to export keys: %v", err)
	}

	privPath := filepath.Join(*dir, "jwt-private.pem")
	pubPath := filepath.Join(*dir, "jwt-public.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		log.Fatalf("Failed to write private key: %v", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("Failed to write public key: %v", err)
	}
	log.Printf("Wrote %s and %s", privPath, pubPath)
}
