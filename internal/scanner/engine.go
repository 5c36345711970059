// Package scanner adapts an external skill analyzer command to the
// orchestrator's Scanner interface.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/leppikallio/pai-opencode/internal/orchestrator"
)

const (
	// DefaultCommand is the analyzer invocation; the skill path is appended.
	DefaultCommand = "skill-scanner scan --format json"

	// DefaultKillGrace is how long the analyzer gets to exit after an
	// interrupt before it is killed.
	DefaultKillGrace = 2 * time.Second

	// ExitLoadError is the analyzer status for a skill it cannot load
	// (EX_DATAERR).
	ExitLoadError = 65

	maxStderr = 4096
)

// AdvisoryDisabledRules are dropped from analyzer output by default.
var AdvisoryDisabledRules = []string{"MANIFEST_MISSING_LICENSE"}

// CommandScanner runs one analyzer process per skill.
type CommandScanner struct {
	argv          []string
	timeout       time.Duration
	killGrace     time.Duration
	disabledRules map[string]bool
}

// Option configures a CommandScanner.
type Option func(*CommandScanner)

// WithTimeout bounds each analyzer run. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *CommandScanner) { s.timeout = d }
}

// WithKillGrace sets the delay between interrupt and kill.
func WithKillGrace(d time.Duration) Option {
	return func(s *CommandScanner) { s.killGrace = d }
}

// WithDisabledRules replaces the set of rule ids dropped from results.
func WithDisabledRules(ids ...string) Option {
	return func(s *CommandScanner) {
		s.disabledRules = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.disabledRules[id] = true
		}
	}
}

// New parses command and returns a scanner for it.
func New(command string, opts ...Option) (*CommandScanner, error) {
	argv := parseCommand(command)
	if len(argv) == 0 {
		return nil, errors.New("empty analyzer command")
	}
	s := &CommandScanner{argv: argv, killGrace: DefaultKillGrace}
	WithDisabledRules(AdvisoryDisabledRules...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan runs the analyzer on t. Exit status 65 maps to ErrSkillLoad. Other
// non-zero statuses are accepted when stdout still holds a result, since
// analyzers commonly exit 1 when they report findings.
func (s *CommandScanner) Scan(parent context.Context, t orchestrator.Target) (models.ScanResult, error) {
	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.argv[1:]...), t.Path)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = s.killGrace

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	if parent.Err() != nil {
		return models.ScanResult{}, parent.Err()
	}
	if ctx.Err() != nil {
		return models.ScanResult{}, fmt.Errorf("analyzer timed out after %s", s.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && exitErr.ExitCode() == ExitLoadError {
		return models.ScanResult{}, fmt.Errorf("%w: %s", orchestrator.ErrSkillLoad, stderr.summary())
	}
	if runErr != nil && exitErr == nil {
		return models.ScanResult{}, fmt.Errorf("failed to run analyzer: %w", runErr)
	}

	res, err := decodeResult(stdout.Bytes())
	if err != nil {
		if runErr != nil {
			return models.ScanResult{}, fmt.Errorf("analyzer exited with status %d: %s", exitErr.ExitCode(), stderr.summary())
		}
		return models.ScanResult{}, fmt.Errorf("invalid analyzer output: %w", err)
	}

	return s.normalize(res, t, time.Since(start)), nil
}

func (s *CommandScanner) normalize(res models.ScanResult, t orchestrator.Target, took time.Duration) models.ScanResult {
	if res.SkillName == "" {
		res.SkillName = t.Name
	}
	if res.SkillPath == "" {
		res.SkillPath = t.Path
	}
	if res.DurationSeconds == 0 {
		res.DurationSeconds = took.Seconds()
	}

	kept := make([]models.Finding, 0, len(res.Findings))
	for i, f := range res.Findings {
		if s.disabledRules[f.RuleID] {
			continue
		}
		if f.Skill == "" {
			f.Skill = res.SkillName
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("%s-%d", f.RuleID, i)
		}
		f.Severity = models.ParseSeverity(string(f.Severity))
		kept = append(kept, f)
	}
	res.Findings = kept
	return res
}

// decodeResult accepts either a single scan result or a report, in which
// case the first result is used.
func decodeResult(data []byte) (models.ScanResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return models.ScanResult{}, errors.New("no output")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.ScanResult{}, err
	}
	if _, ok := probe["results"]; ok {
		var report models.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return models.ScanResult{}, err
		}
		if len(report.Results) == 0 {
			return models.ScanResult{}, errors.New("report has no results")
		}
		return report.Results[0], nil
	}

	var res models.ScanResult
	if err := json.Unmarshal(data, &res); err != nil {
		return models.ScanResult{}, err
	}
	return res, nil
}

// parseCommand splits a command string into parts, respecting quotes.
func parseCommand(command string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, r := range command {
		switch {
		case (r == '"' || r == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = r
		case r == quoteChar && inQuotes:
			inQuotes = false
			quoteChar = 0
		case (r == ' ' || r == '\t') && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) summary() string {
	s := strings.TrimSpace(string(t.buf))
	if s == "" {
		return "no diagnostic output"
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
