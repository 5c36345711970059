package artifacts

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() Bundle {
	report := models.NewReport(models.ScanResult{
		SkillName: "deploy",
		SkillPath: "/skills/deploy",
		Findings: []models.Finding{
			{ID: "f1", RuleID: "SHELL_EXEC", Severity: models.SeverityHigh, Title: "Shell exec", FilePath: "run.sh", LineNumber: 4},
		},
	})
	report.Summary.Timestamp = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return Bundle{
		Report:  report,
		Summary: "1 skill scanned\n",
		Suppressed: []models.SuppressionRecord{{
			Skill: "deploy", FindingID: "f2", RuleID: "NETWORK", Severity: models.SeverityMedium,
			Title: "curl", AllowlistRuleID: "net-ok", AllowlistSource: "/a.json", Reason: "pinned mirror",
		}},
		Allowlist:   models.AllowlistSummary{Sources: []string{"/a.json"}, SuppressedCount: 1},
		ToolVersion: "v1.2.3",
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	manifest, err := Write(dir, sampleBundle())
	require.NoError(t, err)

	for _, name := range []string{SummaryFile, ReportFile, SARIFFile, SuppressedFile, AllowlistSummaryFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	require.Len(t, manifest.Files, 5)
	assert.Equal(t, AllowlistSummaryFile, manifest.Files[0].Name)

	var suppressed map[string][]models.SuppressionRecord
	data, err := os.ReadFile(filepath.Join(dir, SuppressedFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &suppressed))
	require.Len(t, suppressed["suppressed_findings"], 1)
	assert.Equal(t, "net-ok", suppressed["suppressed_findings"][0].AllowlistRuleID)

	var report map[string]any
	data, err = os.ReadFile(filepath.Join(dir, ReportFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	summary := report["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["total_findings"])
}

func TestWrite_EmptyCollections(t *testing.T) {
	b := sampleBundle()
	b.Suppressed = nil
	b.Allowlist = models.AllowlistSummary{}
	dir := t.TempDir()
	_, err := Write(dir, b)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, SuppressedFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"suppressed_findings": []}`, string(data))

	data, err = os.ReadFile(filepath.Join(dir, AllowlistSummaryFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowlist_sources": [], "suppressed_count": 0, "expired_rules_count": 0, "expired_rules": []}`, string(data))
}

func TestWrite_NilReport(t *testing.T) {
	_, err := Write(t.TempDir(), Bundle{})
	assert.Error(t, err)
}

func TestSARIF(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, sampleBundle())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, SARIFFile))
	require.NoError(t, err)

	var doc sarifDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "skillvet", run.Tool.Driver.Name)
	require.Len(t, run.Tool.Driver.Rules, 2)
	assert.Equal(t, "NETWORK", run.Tool.Driver.Rules[0].ID)

	require.Len(t, run.Results, 2)
	assert.Equal(t, "error", run.Results[0].Level)
	assert.Equal(t, 4, run.Results[0].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Empty(t, run.Results[0].Suppressions)
	require.Len(t, run.Results[1].Suppressions, 1)
	assert.Equal(t, "external", run.Results[1].Suppressions[0].Kind)
	assert.Contains(t, run.Results[1].Suppressions[0].Justification, "net-ok")
}

func TestArchive_Deterministic(t *testing.T) {
	dir := t.TempDir()
	manifest, err := Write(dir, sampleBundle())
	require.NoError(t, err)

	a := filepath.Join(t.TempDir(), "a.zip")
	b := filepath.Join(t.TempDir(), "b.zip")
	require.NoError(t, Archive(dir, manifest, a))
	require.NoError(t, Archive(dir, manifest, b))

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(da, db))

	zr, err := zip.OpenReader(a)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 6)
	assert.Equal(t, ManifestFile, zr.File[0].Name)
}

func TestDefaultDir(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("base", "reports", "20261019-083000-list"), DefaultDir("base", now, "list"))
}
