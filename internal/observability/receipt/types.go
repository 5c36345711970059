// Package receipt writes a per-command evidence record for audit trails.
package receipt

// SchemaVersion of the receipt format.
const SchemaVersion = "1.0"

// Receipt is one command's evidence record.
type Receipt struct {
	SchemaVersion string            `json:"schema_version"`
	OpID          string            `json:"op_id"`
	TsStart       string            `json:"ts_start"`
	TsEnd         string            `json:"ts_end"`
	Command       string            `json:"command"`
	Args          []string          `json:"args"`
	ArgsRedacted  bool              `json:"args_redacted,omitempty"`
	Result        Result            `json:"result"`
	Scan          *ScanSummary      `json:"scan,omitempty"`
	Allowlist     *AllowlistSummary `json:"allowlist,omitempty"`
	Gate          *GateSummary      `json:"gate,omitempty"`
	Lint          *LintSummary      `json:"lint,omitempty"`
	Diff          *DiffSummary      `json:"diff,omitempty"`
}

// Result of the command.
type Result struct {
	Status   string `json:"status"` // success|fail
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// ScanSummary describes what was scanned.
type ScanSummary struct {
	Mode          string `json:"mode"` // single|list|directory|report
	Status        string `json:"status"`
	Planned       int    `json:"planned"`
	Scanned       int    `json:"scanned"`
	Skipped       int    `json:"skipped"`
	TotalFindings int    `json:"total_findings"`
	Critical      int    `json:"critical"`
	High          int    `json:"high"`
	OutputDir     string `json:"output_dir,omitempty"`
}

// FileRef names a file and its content hash.
type FileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
}

// AllowlistSummary records which policy files were applied.
type AllowlistSummary struct {
	Sources      []FileRef `json:"sources"`
	ActiveRules  int       `json:"active_rules"`
	ExpiredRules int       `json:"expired_rules"`
	Suppressed   int       `json:"suppressed"`
}

// GateSummary records the exit decision.
type GateSummary struct {
	Profile  string `json:"profile"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason"`
}

// LintSummary records allowlist hygiene results.
type LintSummary struct {
	Preset     string   `json:"preset,omitempty"`
	Status     string   `json:"status"` // pass|warn|fail
	Violations []string `json:"violations,omitempty"`
}

// DiffSummary records a report comparison.
type DiffSummary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}
