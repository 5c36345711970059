package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leppikallio/pai-opencode/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readReceipt(t *testing.T, path string) Receipt {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Receipt
	require.NoError(t, json.Unmarshal(data, &r), "content: %s", data)
	return r
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOverwrite, m)

	m, err = ParseMode("append")
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, m)

	_, err = ParseMode("rotate")
	assert.Error(t, err)
}

func TestWriterOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "receipt.json")
	for _, op := range []string{"first", "second"} {
		w, err := NewWriter(path, ModeOverwrite)
		require.NoError(t, err)
		require.NoError(t, w.Write(Receipt{SchemaVersion: SchemaVersion, OpID: op, Command: "skillvet scan"}))
		require.NoError(t, w.Close())
	}
	assert.Equal(t, "second", readReceipt(t, path).OpID)
}

func TestWriterAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	w, err := NewWriter(path, ModeAppend)
	require.NoError(t, err)
	require.NoError(t, w.Write(Receipt{OpID: "op-1", Command: "skillvet scan"}))
	require.NoError(t, w.Write(Receipt{OpID: "op-2", Command: "skillvet gate", Result: Result{Status: "fail", ExitCode: 4}}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var second Receipt
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "op-2", second.OpID)
	assert.Equal(t, 4, second.Result.ExitCode)
}

func TestSessionFinish_NoWriter(t *testing.T) {
	sess := Start(context.Background(), "skillvet scan", nil)
	assert.NoError(t, sess.Finish(nil))
}

func TestSessionFinish_Sections(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "allowlist.json")
	content := []byte(`{"rules": []}`)
	require.NoError(t, os.WriteFile(policy, content, 0644))
	sum := sha256.Sum256(content)

	path := filepath.Join(dir, "receipt.json")
	w, err := NewWriter(path, ModeOverwrite)
	require.NoError(t, err)
	defer w.Close()

	ctx := WithWriter(observability.WithOpID(context.Background()), w)
	sess := Start(ctx, "skillvet scan", []string{"--skills-dir", "skills", "--token", "hunter2"})
	require.NoError(t, sess.Finish(nil,
		WithExitCode(4),
		WithScan(ScanSummary{Mode: "directory", Status: "completed", Planned: 3, Scanned: 3, High: 2}),
		WithAllowlist([]string{policy, filepath.Join(dir, "gone.json")}, 5, 1, 7),
		WithGate("block-high", 4, "gate block-high triggered (critical=0, high=2)"),
	))

	r := readReceipt(t, path)
	assert.Equal(t, observability.OpID(ctx), r.OpID)
	assert.Equal(t, "fail", r.Result.Status)
	assert.Equal(t, 4, r.Result.ExitCode)
	assert.True(t, r.ArgsRedacted)
	assert.Equal(t, redactedValue, r.Args[3])

	require.NotNil(t, r.Scan)
	assert.Equal(t, 2, r.Scan.High)
	require.NotNil(t, r.Allowlist)
	require.Len(t, r.Allowlist.Sources, 2)
	assert.Equal(t, hex.EncodeToString(sum[:]), r.Allowlist.Sources[0].SHA256)
	assert.Empty(t, r.Allowlist.Sources[1].SHA256)
	assert.Equal(t, 7, r.Allowlist.Suppressed)
	require.NotNil(t, r.Gate)
	assert.Equal(t, "block-high", r.Gate.Profile)
}

func TestSessionFinish_TruncatesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.json")
	w, err := NewWriter(path, ModeOverwrite)
	require.NoError(t, err)
	defer w.Close()

	ctx := WithWriter(context.Background(), w)
	require.NoError(t, Start(ctx, "skillvet scan", nil).Finish(errors.New(strings.Repeat("x", 5000))))

	r := readReceipt(t, path)
	assert.Equal(t, "fail", r.Result.Status)
	assert.Len(t, r.Result.Error, MaxErrorLength)
	assert.True(t, strings.HasSuffix(r.Result.Error, "..."))
}
