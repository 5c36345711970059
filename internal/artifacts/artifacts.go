// Package artifacts writes the audit files of a scan run to an output
// directory.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
)

// File names inside an output directory.
const (
	SummaryFile          = "summary.txt"
	ReportFile           = "report.json"
	SARIFFile            = "report.sarif"
	SuppressedFile       = "suppressed-findings.json"
	AllowlistSummaryFile = "allowlist-summary.json"
	ManifestFile         = "manifest.json"
)

// Bundle is everything one run writes.
type Bundle struct {
	Report      *models.Report
	Summary     string
	Suppressed  []models.SuppressionRecord
	Allowlist   models.AllowlistSummary
	ToolVersion string
}

// DefaultDir returns reports/<YYYYMMDD-HHMMSS>-<mode> under base.
func DefaultDir(base string, now time.Time, mode string) string {
	return filepath.Join(base, "reports", fmt.Sprintf("%s-%s", now.Format("20060102-150405"), mode))
}

type suppressedDoc struct {
	SuppressedFindings []models.SuppressionRecord `json:"suppressed_findings"`
}

// Write creates dir and writes every artifact of b into it, followed by a
// manifest of their hashes.
func Write(dir string, b Bundle) (*Manifest, error) {
	if b.Report == nil {
		return nil, fmt.Errorf("no report to write")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	records := b.Suppressed
	if records == nil {
		records = []models.SuppressionRecord{}
	}
	summary := b.Allowlist
	if summary.Sources == nil {
		summary.Sources = []string{}
	}
	if summary.ExpiredRules == nil {
		summary.ExpiredRules = []models.AllowlistRule{}
	}
	sarif, err := buildSARIF(b.Report, records, b.ToolVersion)
	if err != nil {
		return nil, err
	}

	files := []struct {
		name string
		data func() ([]byte, error)
	}{
		{SummaryFile, func() ([]byte, error) { return []byte(b.Summary), nil }},
		{ReportFile, func() ([]byte, error) { return marshal(b.Report) }},
		{SARIFFile, func() ([]byte, error) { return sarif, nil }},
		{SuppressedFile, func() ([]byte, error) { return marshal(suppressedDoc{SuppressedFindings: records}) }},
		{AllowlistSummaryFile, func() ([]byte, error) { return marshal(summary) }},
	}

	var written []string
	for _, f := range files {
		data, err := f.data()
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, path)
	}

	manifest, err := GenerateManifest(written, b.ToolVersion)
	if err != nil {
		return nil, err
	}
	data, err := manifest.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return manifest, nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
