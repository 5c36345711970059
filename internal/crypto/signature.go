package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SigTypeEd25519 is the only signature type written.
const SigTypeEd25519 = "ed25519"

// SignatureHeader describes how the signed bytes were produced.
type SignatureHeader struct {
	CanonVersion string `json:"canon_version"`
	SigType      string `json:"sig_type"`
}

// SignatureEnvelope is a parsed signature file.
type SignatureEnvelope struct {
	Header    SignatureHeader
	Signature []byte
}

// WriteSignature renders a signature file: a JSON header line followed by
// the hex signature.
func WriteSignature(sig []byte, canonVersion string) []byte {
	header, _ := json.Marshal(SignatureHeader{CanonVersion: canonVersion, SigType: SigTypeEd25519})
	return []byte(string(header) + "\n" + hex.EncodeToString(sig) + "\n")
}

// ReadSignature parses a signature file written by WriteSignature.
func ReadSignature(data []byte) (*SignatureEnvelope, error) {
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if len(lines) != 2 {
		return nil, errors.New("invalid signature format: expected header and payload")
	}

	var header SignatureHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		return nil, fmt.Errorf("invalid signature header: %w", err)
	}
	if header.SigType != SigTypeEd25519 {
		return nil, fmt.Errorf("unsupported signature type %q", header.SigType)
	}
	if header.CanonVersion != CanonJCS {
		return nil, fmt.Errorf("unsupported canonicalization %q", header.CanonVersion)
	}

	sig, err := hex.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return &SignatureEnvelope{Header: header, Signature: sig}, nil
}
