package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/leppikallio/pai-opencode/internal/allowlist"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upsertArgs(file, id string, extra ...string) []string {
	args := []string{"allowlist", "upsert",
		"--file", file,
		"--id", id,
		"--skill", "alpha",
		"--rule-id", "EXEC-001",
		"--reason", "reviewed sandboxed call",
		"--owner", "sec-team",
		"--expires-at", "2099-01-01",
	}
	return append(args, extra...)
}

func TestAllowlist_UpsertCreatesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "policy", "allowlist.json")

	code, stdout, stderr := runCLI(t, upsertArgs(file, "ok-exec", "--created-at", "2026-01-02")...)
	require.Equal(t, exitcode.OK, code, stderr)
	assert.Equal(t, "added: ok-exec\npolicy: "+file+"\n", stdout)

	doc, err := allowlist.ReadDocument(file)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	r := doc.Rules[0]
	assert.Equal(t, "alpha", r.Skill)
	assert.Equal(t, "2026-01-02", r.CreatedAt)
	assert.True(t, r.IsEnabled())
	assert.Empty(t, r.SourceFile)
}

func TestAllowlist_UpsertUpdatesAndKeepsCreatedAt(t *testing.T) {
	file := filepath.Join(t.TempDir(), "allowlist.json")

	code, _, _ := runCLI(t, upsertArgs(file, "ok-exec", "--created-at", "2026-01-02")...)
	require.Equal(t, exitcode.OK, code)

	code, stdout, _ := runCLI(t, upsertArgs(file, "ok-exec", "--file-path", "scripts/run.sh")...)
	require.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "updated: ok-exec")

	doc, err := allowlist.ReadDocument(file)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.Equal(t, "2026-01-02", doc.Rules[0].CreatedAt)
	assert.Equal(t, "scripts/run.sh", doc.Rules[0].FilePath)
}

func TestAllowlist_UpsertValidation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "allowlist.json")

	code, _, stderr := runCLI(t, upsertArgs(file, "bad", "--created-at", "yesterday")...)
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "created_at")

	args := upsertArgs(file, "bad")
	args[len(args)-1] = "2099-13-40"
	code, _, stderr = runCLI(t, args...)
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "expires_at")

	code, _, stderr = runCLI(t, "allowlist", "upsert", "--file", file, "--id", "x")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "required flag")
	assert.NoFileExists(t, file)
}

func TestAllowlist_ListAndDisable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "allowlist.json")
	require.Equal(t, exitcode.OK, first(runCLI(t, upsertArgs(file, "a-rule")...)))
	require.Equal(t, exitcode.OK, first(runCLI(t, upsertArgs(file, "b-rule")...)))

	code, stdout, _ := runCLI(t, "allowlist", "list", "--file", file)
	require.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "- a-rule [enabled]")
	assert.Contains(t, stdout, "  owner=sec-team expires_at=2099-01-01")
	assert.Contains(t, stdout, "Listed 2 rule(s) from "+file)

	code, stdout, _ = runCLI(t, "allowlist", "disable", "--file", file, "--id", "a-rule", "--reason", "fixed upstream")
	require.Equal(t, exitcode.OK, code)
	assert.Equal(t, "disabled: a-rule\npolicy: "+file+"\n", stdout)

	_, stdout, _ = runCLI(t, "allowlist", "list", "--file", file)
	assert.NotContains(t, stdout, "a-rule")
	assert.Contains(t, stdout, "Listed 1 rule(s)")

	_, stdout, _ = runCLI(t, "allowlist", "list", "--file", file, "--include-disabled")
	assert.Contains(t, stdout, "- a-rule [disabled]")
	assert.Contains(t, stdout, "  reason=fixed upstream")
}

func TestAllowlist_ListJSON(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "allowlist.json", expiredAllowlist)

	code, stdout, _ := runCLI(t, "allowlist", "list", "--file", file, "--format", "json")
	require.Equal(t, exitcode.OK, code)

	var rows []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "old-exec", rows[0].ID)
	assert.Equal(t, "enabled,expired", rows[0].Status)
}

func TestAllowlist_DisableErrors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.json")

	code, _, stderr := runCLI(t, "allowlist", "disable", "--file", missing, "--id", "x")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "allowlist file not found")

	file := writeFile(t, dir, "allowlist.json", activeAllowlist)
	code, _, stderr = runCLI(t, "allowlist", "disable", "--file", file, "--id", "nope")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "rule not found")
}

func TestAllowlist_PruneExpired(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "allowlist.json", `{
  "rules": [
    {"id": "old", "skill": "alpha", "rule_id": "EXEC-001", "expires_at": "2020-01-01"},
    {"id": "typo", "skill": "alpha", "rule_id": "NET-001", "expires_at": "someday"},
    {"id": "keep", "skill": "alpha", "rule_id": "EXEC-002", "expires_at": "2099-01-01"}
  ]
}`)

	code, stdout, _ := runCLI(t, "allowlist", "prune-expired", "--file", file)
	require.Equal(t, exitcode.OK, code)
	assert.Equal(t, "pruned expired rules: 2\npolicy: "+file+"\n", stdout)

	doc, err := allowlist.ReadDocument(file)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.Equal(t, "keep", doc.Rules[0].ID)
}

func TestAllowlist_LintBaseline(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", activeAllowlist)

	code, stdout, _ := runCLI(t, "allowlist", "lint", "--file", good)
	assert.Equal(t, exitcode.OK, code)
	assert.Contains(t, stdout, "[lint] baseline: 1 rule(s) checked, 0 error(s), 0 warning(s)")

	wildcard := writeFile(t, dir, "wild.json", `{"rules": [{"id": "all", "owner": "x", "reason": "temporary blanket mute", "expires_at": "2099-01-01"}]}`)
	code, stdout, _ = runCLI(t, "allowlist", "lint", "--file", wildcard)
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stdout, "not_wildcard")
}

func TestAllowlist_LintStrictJSON(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "allowlist.json", `{"rules": [{"id": "short", "skill": "alpha", "rule_id": "EXEC-001", "owner": "x", "reason": "ok", "expires_at": "2099-01-01"}]}`)

	code, stdout, _ := runCLI(t, "allowlist", "lint", "--file", file, "--preset", "strict", "--format", "json")
	assert.Equal(t, exitcode.Failure, code)

	var rep struct {
		Policy     string `json:"policy"`
		Violations []struct {
			RuleName string `json:"rule"`
		} `json:"violations"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, "strict", rep.Policy)
	var names []string
	for _, v := range rep.Violations {
		names = append(names, v.RuleName)
	}
	assert.Contains(t, names, "has_reason")
	assert.Contains(t, names, "expiry_within_90_days")
}

func TestAllowlist_LintUnknownPreset(t *testing.T) {
	file := writeFile(t, t.TempDir(), "allowlist.json", activeAllowlist)

	code, _, stderr := runCLI(t, "allowlist", "lint", "--file", file, "--preset", "paranoid")
	assert.Equal(t, exitcode.Failure, code)
	assert.Contains(t, stderr, "unknown lint preset")
}

func first(code int, _, _ string) int { return code }
