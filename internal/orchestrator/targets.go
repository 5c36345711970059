package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestMarker is the file that makes a directory a skill.
const ManifestMarker = "SKILL.md"

// ErrNoManifest marks a directory without ManifestMarker.
var ErrNoManifest = errors.New("missing " + ManifestMarker)

// Mode is how targets were selected.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeList      Mode = "list"
	ModeDirectory Mode = "directory"
)

// Target is one skill directory to scan.
type Target struct {
	Name string
	Path string
}

// Skip records a requested path that will not be scanned.
type Skip struct {
	Path   string
	Reason string
}

// Plan is the ordered work for one run.
type Plan struct {
	Mode    Mode
	Targets []Target
	Skipped []Skip
}

func newTarget(dir string) Target {
	return Target{Name: filepath.Base(dir), Path: dir}
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestMarker))
	return err == nil && !info.IsDir()
}

// PlanSingle validates one skill directory. A missing marker is fatal.
func PlanSingle(path string) (*Plan, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !hasManifest(dir) {
		return nil, fmt.Errorf("invalid skill directory (%w): %s", ErrNoManifest, dir)
	}
	return &Plan{Mode: ModeSingle, Targets: []Target{newTarget(dir)}}, nil
}

// PlanDirectory finds every skill below root, in lexical order. Hidden
// directories are not descended into.
func PlanDirectory(root string) (*Plan, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("skills directory not found: %s", abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills path is not a directory: %s", abs)
	}

	plan := &Plan{Mode: ModeDirectory}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == abs {
				return err
			}
			plan.Skipped = append(plan.Skipped, Skip{Path: p, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != abs && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if hasManifest(p) {
			plan.Targets = append(plan.Targets, newTarget(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}
	return plan, nil
}

// PlanList combines a list file (one path per line, blank and # lines
// ignored) with extra paths, in that order. Duplicates by absolute path
// keep their first position. Entries without a marker are skipped.
func PlanList(listFile string, paths []string) (*Plan, error) {
	var raw []string
	if listFile != "" {
		lines, err := readList(listFile)
		if err != nil {
			return nil, err
		}
		raw = append(raw, lines...)
	}
	raw = append(raw, paths...)
	if len(raw) == 0 {
		return nil, errors.New("list mode needs a skill list file or at least one skill directory")
	}

	plan := &Plan{Mode: ModeList}
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		dir, err := filepath.Abs(p)
		if err != nil {
			plan.Skipped = append(plan.Skipped, Skip{Path: p, Reason: err.Error()})
			continue
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if !hasManifest(dir) {
			plan.Skipped = append(plan.Skipped, Skip{Path: dir, Reason: ErrNoManifest.Error()})
			continue
		}
		plan.Targets = append(plan.Targets, newTarget(dir))
	}

	if len(plan.Targets) == 0 {
		return plan, errors.New("no valid skill directories in list")
	}
	return plan, nil
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("skill list file not found: %s", path)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read skill list %s: %w", path, err)
	}
	return out, nil
}
