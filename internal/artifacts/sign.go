package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leppikallio/pai-opencode/internal/crypto"
)

// SignatureFile holds the detached manifest signature.
const SignatureFile = "manifest.sig"

// Sign writes a detached ed25519 signature over the canonical form of m.
func Sign(dir string, m *Manifest, privateKeyPath string) error {
	canonical, err := crypto.Canonicalize(m)
	if err != nil {
		return fmt.Errorf("failed to canonicalize manifest: %w", err)
	}
	sig, err := crypto.Sign(canonical, privateKeyPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, SignatureFile), crypto.WriteSignature(sig, crypto.CanonJCS), 0644); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}
	return nil
}

// Verification is the result of checking an output directory.
type Verification struct {
	ToolVersion string
	Checked     int
	Signed      bool
	Problems    []string
}

// OK reports whether every check passed.
func (v *Verification) OK() bool {
	return len(v.Problems) == 0
}

// Verify re-hashes every file listed in dir's manifest. With a public key
// the manifest signature must also be present and valid.
func Verify(dir, publicKeyPath string) (*Verification, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	v := &Verification{ToolVersion: m.ToolVersion}
	if publicKeyPath != "" {
		if err := verifySignature(dir, &m, publicKeyPath); err != nil {
			if !errors.Is(err, errBadSignature) {
				return nil, err
			}
			v.Problems = append(v.Problems, err.Error())
		} else {
			v.Signed = true
		}
	}

	for _, f := range m.Files {
		v.Checked++
		sum, size, err := hashFile(filepath.Join(dir, f.Name))
		switch {
		case err != nil:
			v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", f.Name, err))
		case sum != f.SHA256 || size != f.Size:
			v.Problems = append(v.Problems, fmt.Sprintf("%s: digest mismatch", f.Name))
		}
	}
	return v, nil
}

var errBadSignature = errors.New("manifest signature is not valid for this key")

func verifySignature(dir string, m *Manifest, publicKeyPath string) error {
	data, err := os.ReadFile(filepath.Join(dir, SignatureFile))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s is missing", errBadSignature, SignatureFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	env, err := crypto.ReadSignature(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadSignature, err)
	}
	canonical, err := crypto.Canonicalize(m)
	if err != nil {
		return fmt.Errorf("failed to canonicalize manifest: %w", err)
	}
	ok, err := crypto.Verify(canonical, env.Signature, publicKeyPath)
	if err != nil {
		return err
	}
	if !ok {
		return errBadSignature
	}
	return nil
}
