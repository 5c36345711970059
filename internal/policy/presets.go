// Package policy lints allowlist rules against CEL hygiene policies and
// ships the built-in presets.
package policy

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/leppikallio/pai-opencode/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

var (
	presetMu    sync.Mutex
	presetCache = map[string]*models.PolicyConfig{}
)

// presetFiles maps preset names to embedded file paths
var presetFiles = map[string]string{
	"baseline": "presets/baseline.yaml",
	"strict":   "presets/strict.yaml",
}

// GetPreset returns a policy preset by name, or nil if not found
func GetPreset(name string) *models.PolicyConfig {
	presetMu.Lock()
	defer presetMu.Unlock()

	if cached, ok := presetCache[name]; ok {
		return cached
	}

	path, ok := presetFiles[name]
	if !ok {
		return nil
	}

	data, err := presetFS.ReadFile(path)
	if err != nil {
		return nil
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil
	}

	presetCache[name] = config
	return config
}

// ListPresetNames returns the preset names in sorted order.
func ListPresetNames() []string {
	names := make([]string, 0, len(presetFiles))
	for name := range presetFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MustGetPreset returns a preset or panics (for tests)
func MustGetPreset(name string) *models.PolicyConfig {
	p := GetPreset(name)
	if p == nil {
		panic(fmt.Sprintf("preset %q not found", name))
	}
	return p
}

// ParseConfig decodes a YAML policy document.
func ParseConfig(data []byte) (*models.PolicyConfig, error) {
	var config models.PolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(config.Rules) == 0 {
		return nil, fmt.Errorf("policy %q has no rules", config.Name)
	}
	return &config, nil
}

// LoadConfig reads a policy file from disk.
func LoadConfig(path string) (*models.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseConfig(data)
}

// Resolve returns the named preset, falling back to a policy file path.
func Resolve(nameOrPath string) (*models.PolicyConfig, error) {
	if p := GetPreset(nameOrPath); p != nil {
		return p, nil
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("unknown lint preset %q (available: %v)", nameOrPath, ListPresetNames())
	}
	return LoadConfig(nameOrPath)
}
