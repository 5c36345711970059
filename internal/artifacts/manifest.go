package artifacts

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Manifest lists the artifacts of a run with their digests.
type Manifest struct {
	ToolVersion string         `json:"tool_version"`
	Files       []ManifestEntry `json:"files"`
}

// ManifestEntry describes one artifact.
type ManifestEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// GenerateManifest hashes paths. Entries are sorted by base name.
func GenerateManifest(paths []string, toolVersion string) (*Manifest, error) {
	m := &Manifest{ToolVersion: toolVersion, Files: make([]ManifestEntry, 0, len(paths))}
	for _, p := range paths {
		sum, size, err := hashFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", p, err)
		}
		m.Files = append(m.Files, ManifestEntry{Name: filepath.Base(p), SHA256: sum, Size: size})
	}
	sort.Slice(m.Files, func(i, j int) bool {
		return m.Files[i].Name < m.Files[j].Name
	})
	return m, nil
}

// ToJSON renders the manifest deterministically.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func hashFile(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), int64(len(data)), nil
}
