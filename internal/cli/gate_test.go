package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leppikallio/pai-opencode/internal/artifacts"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const criticalReport = `{
  "results": [
    {
      "skill_name": "alpha",
      "findings": [
        {"id": "f1", "rule_id": "EXEC-001", "severity": "CRITICAL", "title": "Shell exec", "file_path": "run.sh", "line_number": 3}
      ]
    },
    {"skill_name": "beta", "findings": []}
  ],
  "summary": {"timestamp": "2026-03-10T12:00:00Z"}
}`

const activeAllowlist = `{
  "version": 1,
  "rules": [
    {"id": "ok-exec", "skill": "alpha", "rule_id": "EXEC-001", "owner": "sec", "reason": "reviewed sandboxed call", "expires_at": "2099-01-01"}
  ]
}`

const expiredAllowlist = `{
  "rules": [
    {"id": "old-exec", "skill": "alpha", "rule_id": "EXEC-001", "owner": "sec", "reason": "reviewed sandboxed call", "expires_at": "2020-01-01"}
  ]
}`

func TestGate_AdvisoryPasses(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, stdout, _ := runCLI(t, "gate", "--report", report)
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "Gate: advisory mode (critical=1, high=0)")
	assert.Contains(t, stdout, "EXEC-001")
}

func TestGate_BlockCritical(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, stdout, stderr := runCLI(t, "gate", "--report", report, "--gate-profile", "block-critical")
	assert.Equal(t, exitcode.BlockCritical, code)
	assert.Contains(t, stdout, "Gate: gate block-critical triggered (critical=1)")
	assert.NotContains(t, stderr, "Error:")
}

func TestGate_LegacyFailOnFindings(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, _, stderr := runCLI(t, "gate", "--report", report, "--fail-on-findings")
	assert.Equal(t, exitcode.BlockHigh, code)
	assert.Contains(t, stderr, gate.LegacyNotice)
}

func TestGate_ExplicitProfileBeatsLegacyFlag(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, _, stderr := runCLI(t, "gate", "--report", report, "--fail-on-findings", "--gate-profile", "advisory")
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stderr, "using explicit gate profile 'advisory'")
}

func TestGate_UnknownProfile(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, _, stderr := runCLI(t, "gate", "--report", report, "--gate-profile", "paranoid")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "unknown gate profile")
}

func TestGate_AllowlistSuppressesAndWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.json", criticalReport)
	allow := writeFile(t, dir, "allow.json", activeAllowlist)
	outDir := filepath.Join(dir, "out")

	code, stdout, _ := runCLI(t, "gate",
		"--report", report,
		"--allowlist-file", allow,
		"--gate-profile", "block-critical",
		"--output-dir", outDir)
	require.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "Gate: gate block-critical passed (critical=0)")
	assert.Contains(t, stdout, "Artifacts:")

	for _, name := range []string{artifacts.ReportFile, artifacts.SuppressedFile, artifacts.AllowlistSummaryFile, artifacts.ManifestFile} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}
	suppressed, err := os.ReadFile(filepath.Join(outDir, artifacts.SuppressedFile))
	require.NoError(t, err)
	assert.Contains(t, string(suppressed), "ok-exec")
}

func TestGate_NoAllowlistKeepsFindings(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.json", criticalReport)
	allow := writeFile(t, dir, "allow.json", activeAllowlist)

	code, _, _ := runCLI(t, "gate",
		"--report", report,
		"--allowlist-file", allow,
		"--no-allowlist",
		"--gate-profile", "block-critical")
	assert.Equal(t, exitcode.BlockCritical, code)
}

func TestGate_ExpiredRuleNeverSuppresses(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.json", criticalReport)
	allow := writeFile(t, dir, "allow.json", expiredAllowlist)

	code, stdout, stderr := runCLI(t, "gate",
		"--report", report,
		"--allowlist-file", allow)
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stderr, "Found 1 expired allowlist rule(s)")
	assert.Contains(t, stderr, "old-exec")
	assert.Contains(t, stdout, "Gate: advisory mode (critical=1, high=0)")
}

func TestGate_BlockingProfileFailsOnExpiredRule(t *testing.T) {
	dir := t.TempDir()
	clean := writeFile(t, dir, "clean.json", `{"results": [{"skill_name": "beta", "findings": []}]}`)
	critical := writeFile(t, dir, "critical.json", criticalReport)
	allow := writeFile(t, dir, "allow.json", expiredAllowlist)

	for _, tc := range []struct {
		report  string
		profile string
	}{
		{clean, "block-high"},
		{clean, "block-critical"},
		{critical, "block-critical"},
	} {
		code, _, stderr := runCLI(t, "gate",
			"--report", tc.report,
			"--allowlist-file", allow,
			"--gate-profile", tc.profile)
		assert.Equal(t, exitcode.ExpiredAllowlist, code, tc.profile)
		assert.Contains(t, stderr, "expired allowlist rule(s) under gate profile "+tc.profile)
	}
}

func TestGate_FailOnExpiredAllowlist(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.json", criticalReport)
	allow := writeFile(t, dir, "allow.json", expiredAllowlist)

	code, _, stderr := runCLI(t, "gate",
		"--report", report,
		"--allowlist-file", allow,
		"--fail-on-expired-allowlist")
	assert.Equal(t, exitcode.ExpiredAllowlist, code)
	assert.Contains(t, stderr, "--fail-on-expired-allowlist")
}

func TestGate_MissingAllowlistFileFails(t *testing.T) {
	report := writeFile(t, t.TempDir(), "report.json", criticalReport)

	code, _, stderr := runCLI(t, "gate", "--report", report, "--allowlist-file", "/nonexistent/allow.json")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "allowlist file not found")
}

func TestGate_MissingReport(t *testing.T) {
	code, _, stderr := runCLI(t, "gate", "--report", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "failed to read report")
}

func TestGate_WritesMetricsFile(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.json", criticalReport)
	metricsPath := filepath.Join(dir, "skillvet.prom")

	code, _, _ := runCLI(t, "gate", "--report", report, "--metrics-file", metricsPath)
	require.Equal(t, exitcode.OK, code)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `skillvet_findings{severity="critical"} 1`)
}
