// Package crypto signs and verifies artifact manifests with ed25519 keys
// stored as PEM files.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const (
	privateKeyType = "ED25519 PRIVATE KEY"
	publicKeyType  = "ED25519 PUBLIC KEY"
)

// GenerateKeys writes a new ed25519 keypair. The private key is readable
// by the owner only. Existing files are never overwritten.
func GenerateKeys(privateKeyPath, publicKeyPath string) error {
	for _, p := range []string{privateKeyPath, publicKeyPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("refusing to overwrite existing key file: %s", p)
		}
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	if err := writePEM(privateKeyPath, privateKeyType, privateKey, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := writePEM(publicKeyPath, publicKeyType, publicKey, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

func writePEM(path, blockType string, key []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: key})
	return os.WriteFile(path, data, perm)
}

func readPEM(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("invalid key type: expected %s, got %s", blockType, block.Type)
	}
	return block.Bytes, nil
}

// Sign signs data with the private key at privateKeyPath.
func Sign(data []byte, privateKeyPath string) ([]byte, error) {
	raw, err := readPEM(privateKeyPath, privateKeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.Sign(ed25519.PrivateKey(raw), data), nil
}

// Verify reports whether signature is valid for data under the public key
// at publicKeyPath. An error means the key could not be used.
func Verify(data, signature []byte, publicKeyPath string) (bool, error) {
	raw, err := readPEM(publicKeyPath, publicKeyType)
	if err != nil {
		return false, fmt.Errorf("failed to read public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(raw), data, signature), nil
}
