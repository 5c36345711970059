package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/leppikallio/pai-opencode/internal/observability"
)

// MaxErrorLength caps error strings stored in receipts.
const MaxErrorLength = 2048

// Session tracks one command from start to finish.
type Session struct {
	ctx     context.Context
	start   time.Time
	command string
	args    []string
}

// Start a session for command invoked with args.
func Start(ctx context.Context, cmd string, args []string) *Session {
	return &Session{
		ctx:     ctx,
		start:   time.Now(),
		command: cmd,
		args:    args,
	}
}

// Option adds a section to the receipt.
type Option func(*Receipt)

// WithExitCode records the process exit code.
func WithExitCode(code int) Option {
	return func(r *Receipt) {
		r.Result.ExitCode = code
	}
}

// WithScan attaches scan counts.
func WithScan(s ScanSummary) Option {
	return func(r *Receipt) {
		r.Scan = &s
	}
}

// WithAllowlist attaches the policy sources, hashing each file that can
// still be read.
func WithAllowlist(sources []string, active, expired, suppressed int) Option {
	return func(r *Receipt) {
		a := &AllowlistSummary{
			Sources:      make([]FileRef, 0, len(sources)),
			ActiveRules:  active,
			ExpiredRules: expired,
			Suppressed:   suppressed,
		}
		for _, p := range sources {
			ref := FileRef{Path: p}
			if sum, err := fileSHA256(p); err == nil {
				ref.SHA256 = sum
			}
			a.Sources = append(a.Sources, ref)
		}
		r.Allowlist = a
	}
}

// WithGate attaches the gate decision.
func WithGate(profile string, exitCode int, reason string) Option {
	return func(r *Receipt) {
		r.Gate = &GateSummary{Profile: profile, ExitCode: exitCode, Reason: reason}
	}
}

// WithLint attaches allowlist lint results.
func WithLint(preset, status string, violations []string) Option {
	return func(r *Receipt) {
		r.Lint = &LintSummary{Preset: preset, Status: status, Violations: violations}
	}
}

// WithDiff attaches report comparison counts.
func WithDiff(added, removed, changed int) Option {
	return func(r *Receipt) {
		r.Diff = &DiffSummary{Added: added, Removed: removed, Changed: changed}
	}
}

// Finish writes the receipt if a writer is configured in the context.
func (s *Session) Finish(err error, opts ...Option) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	args, redacted := RedactArgs(s.args)
	r := Receipt{
		SchemaVersion: SchemaVersion,
		OpID:          observability.OpID(s.ctx),
		TsStart:       s.start.Format(time.RFC3339Nano),
		TsEnd:         time.Now().Format(time.RFC3339Nano),
		Command:       s.command,
		Args:          args,
		ArgsRedacted:  redacted,
		Result:        Result{Status: "success"},
	}
	if err != nil {
		r.Result = Result{Status: "fail", Error: truncateError(err.Error())}
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.Result.ExitCode != 0 {
		r.Result.Status = "fail"
	}

	return w.Write(r)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func truncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	return s[:MaxErrorLength-3] + "..."
}
