package allowlist

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvAllowlist lists extra policy files, separated like PATH.
const EnvAllowlist = "SKILLVET_ALLOWLIST"

// SourceConfig selects which policy files a run uses.
type SourceConfig struct {
	// Disabled turns filtering off entirely.
	Disabled bool
	// Defaults are optional locations, used only when present on disk.
	Defaults []string
	// Explicit files must exist.
	Explicit []string
}

// DefaultLocations returns the project-local and per-user policy paths.
func DefaultLocations() []string {
	locs := []string{filepath.Join(".skillvet", "allowlist.json")}
	if dir, err := os.UserConfigDir(); err == nil {
		locs = append(locs, filepath.Join(dir, "skillvet", "allowlist.json"))
	}
	return locs
}

// EnvLocations splits the SKILLVET_ALLOWLIST value.
func EnvLocations() []string {
	v := os.Getenv(EnvAllowlist)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveSources returns the ordered policy files to load: existing
// defaults first, then explicit files. A missing explicit file is an error.
// The same file is never listed twice.
func ResolveSources(cfg SourceConfig) ([]string, error) {
	if cfg.Disabled {
		return nil, nil
	}

	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		files = append(files, abs)
	}

	for _, p := range cfg.Defaults {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			add(p)
		}
	}
	for _, p := range cfg.Explicit {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("allowlist file not found: %s", p)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("allowlist path is a directory: %s", p)
		}
		add(p)
	}
	return files, nil
}
