package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/leppikallio/pai-opencode/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "SKILLVET_SCANNER_HELPER"

// TestHelperProcess stands in for the analyzer binary. The mode comes
// from the environment; the skill path is the last argument.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	target := os.Args[len(os.Args)-1]

	result := models.ScanResult{
		SkillName: filepath.Base(target),
		Findings: []models.Finding{
			{ID: "f1", RuleID: "PROMPT_INJECTION", Severity: "high", Title: "Override instructions"},
			{RuleID: "MANIFEST_MISSING_LICENSE", Severity: "LOW", Title: "No license"},
			{RuleID: "NETWORK_EGRESS", Severity: "MEDIUM", Title: "curl to remote host"},
		},
	}

	switch mode {
	case "result":
		_ = json.NewEncoder(os.Stdout).Encode(result)
	case "findings-exit1":
		_ = json.NewEncoder(os.Stdout).Encode(result)
		os.Exit(1)
	case "report":
		_ = json.NewEncoder(os.Stdout).Encode(models.NewReport(result))
	case "load-error":
		fmt.Fprintln(os.Stderr, "loading skill")
		fmt.Fprintln(os.Stderr, "SKILL.md frontmatter is not valid YAML")
		os.Exit(ExitLoadError)
	case "crash":
		fmt.Fprintln(os.Stderr, "segfault in analyzer")
		os.Exit(2)
	case "garbage":
		fmt.Println("not json")
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperScanner(t *testing.T, mode string, opts ...Option) *CommandScanner {
	t.Helper()
	t.Setenv(helperEnv, mode)
	s, err := New(os.Args[0]+" -test.run=^TestHelperProcess$ --", opts...)
	require.NoError(t, err)
	return s
}

func target() orchestrator.Target {
	return orchestrator.Target{Name: "deploy", Path: "/skills/deploy"}
}

func TestScan_Result(t *testing.T) {
	s := helperScanner(t, "result")

	res, err := s.Scan(context.Background(), target())
	require.NoError(t, err)

	assert.Equal(t, "deploy", res.SkillName)
	assert.Equal(t, "/skills/deploy", res.SkillPath)
	require.Len(t, res.Findings, 2, "advisory-disabled rule dropped")
	assert.Equal(t, models.SeverityHigh, res.Findings[0].Severity)
	assert.Equal(t, "deploy", res.Findings[0].Skill)
	assert.Equal(t, "NETWORK_EGRESS-2", res.Findings[1].ID)
	assert.Greater(t, res.DurationSeconds, 0.0)
}

func TestScan_ReportOutput(t *testing.T) {
	s := helperScanner(t, "report", WithDisabledRules())
	res, err := s.Scan(context.Background(), target())
	require.NoError(t, err)
	assert.Len(t, res.Findings, 3)
}

func TestScan_NonZeroWithResult(t *testing.T) {
	s := helperScanner(t, "findings-exit1")
	res, err := s.Scan(context.Background(), target())
	require.NoError(t, err)
	assert.Len(t, res.Findings, 2)
}

func TestScan_LoadError(t *testing.T) {
	s := helperScanner(t, "load-error")
	_, err := s.Scan(context.Background(), target())
	require.ErrorIs(t, err, orchestrator.ErrSkillLoad)
	assert.Contains(t, err.Error(), "frontmatter is not valid YAML")
}

func TestScan_Failures(t *testing.T) {
	_, err := helperScanner(t, "crash").Scan(context.Background(), target())
	require.Error(t, err)
	assert.False(t, errors.Is(err, orchestrator.ErrSkillLoad))
	assert.Contains(t, err.Error(), "status 2")
	assert.Contains(t, err.Error(), "segfault in analyzer")

	_, err = helperScanner(t, "garbage").Scan(context.Background(), target())
	assert.ErrorContains(t, err, "invalid analyzer output")
}

func TestScan_Cancelled(t *testing.T) {
	s := helperScanner(t, "hang", WithKillGrace(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := s.Scan(ctx, target())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestScan_Timeout(t *testing.T) {
	s := helperScanner(t, "hang", WithTimeout(100*time.Millisecond), WithKillGrace(100*time.Millisecond))
	_, err := s.Scan(context.Background(), target())
	assert.ErrorContains(t, err, "timed out")
}

func TestNew_EmptyCommand(t *testing.T) {
	_, err := New("   ")
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"skill-scanner scan --format json", []string{"skill-scanner", "scan", "--format", "json"}},
		{`uv run "skill scanner" --opt 'a b'`, []string{"uv", "run", "skill scanner", "--opt", "a b"}},
		{"  spaced\targs  ", []string{"spaced", "args"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCommand(tt.in), tt.in)
	}
}

func TestLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	body := `{
  "results": [
    {"skill_name": "a", "findings": [{"id": "1", "rule_id": "R", "severity": "CRITICAL", "title": "t"}]},
    {"skill_name": "b", "findings": []}
  ],
  "summary": {"total_skills_scanned": 99, "findings_by_severity": {"critical": 0}, "timestamp": "2026-02-01T10:00:00Z"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	report, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalSkillsScanned)
	assert.Equal(t, 1, report.Summary.CriticalCount())
	assert.Equal(t, 1, report.Summary.SafeSkills)
	assert.Equal(t, 2026, report.Summary.Timestamp.Year())

	_, err = LoadReport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
