package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regressedReport = `{
  "results": [
    {
      "skill_name": "alpha",
      "findings": [
        {"id": "f1", "rule_id": "EXEC-001", "severity": "CRITICAL", "title": "Shell exec", "file_path": "run.sh", "line_number": 3},
        {"id": "f2", "rule_id": "SECRET-001", "severity": "HIGH", "title": "Hardcoded token", "file_path": "config.py", "line_number": 9}
      ]
    },
    {"skill_name": "beta", "findings": []}
  ]
}`

const movedReport = `{
  "results": [
    {
      "skill_name": "alpha",
      "findings": [
        {"id": "f1", "rule_id": "EXEC-001", "severity": "CRITICAL", "title": "Shell exec", "file_path": "run.sh", "line_number": 7}
      ]
    },
    {"skill_name": "beta", "findings": []}
  ]
}`

func TestDiff_NoChanges(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)
	b := writeFile(t, dir, "b.json", criticalReport)

	code, stdout, _ := runCLI(t, "diff", a, b)
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "skillvet diff: PASS (fail-on=critical)")
	assert.Contains(t, stdout, "✓ No finding changes")
}

func TestDiff_NewHighFindingFails(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)
	b := writeFile(t, dir, "b.json", regressedReport)

	code, stdout, _ := runCLI(t, "diff", a, b)
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stdout, "skillvet diff: FAIL")
	assert.Contains(t, stdout, "Findings: +1 -0 ~0")
	assert.Contains(t, stdout, "[+] alpha/f2 HIGH  Hardcoded token")
	assert.Contains(t, stdout, "New HIGH finding.")
}

func TestDiff_FailOnNone(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)
	b := writeFile(t, dir, "b.json", regressedReport)

	code, _, _ := runCLI(t, "diff", a, b, "--fail-on", "none")
	assert.Equal(t, exitcode.OK, code)
}

func TestDiff_MovedFindingIsModerate(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)
	b := writeFile(t, dir, "b.json", movedReport)

	code, stdout, _ := runCLI(t, "diff", a, b)
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "Moved from line 3 to line 7.")

	code, _, _ = runCLI(t, "diff", a, b, "--fail-on", "moderate")
	assert.Equal(t, exitcode.Failure, code)
}

func TestDiff_JSONFormat(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)
	b := writeFile(t, dir, "b.json", regressedReport)

	code, stdout, _ := runCLI(t, "diff", a, b, "--format", "json")
	assert.Equal(t, exitcode.Failure, code)

	var out DiffOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "FAIL", out.Outcome)
	assert.Equal(t, 1, out.Summary.Added)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "SECRET-001", out.Findings[0].RuleID)
	assert.Equal(t, "critical", out.Findings[0].Level)
}

func TestDiff_BadArguments(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", criticalReport)

	code, _, _ := runCLI(t, "diff", a)
	assert.Equal(t, exitcode.Failure, code)

	code, _, stderr := runCLI(t, "diff", a, a, "--fail-on", "sometimes")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "invalid fail-on level")

	code, _, stderr = runCLI(t, "diff", a, filepath.Join(dir, "missing.json"))
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "failed to read report")
}
