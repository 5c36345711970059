package models

import "encoding/json"

// Finding is a single issue reported by the analyzer for one skill.
// Findings are never modified after the analyzer produces them.
type Finding struct {
	ID          string   `json:"id"`
	Skill       string   `json:"skill,omitempty"`
	RuleID      string   `json:"rule_id"`
	Severity    Severity `json:"severity"`
	Analyzer    string   `json:"analyzer,omitempty"`
	Category    string   `json:"category,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
	LineNumber  int      `json:"line_number,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// ScanResult is one skill's scan outcome.
type ScanResult struct {
	SkillName       string    `json:"skill_name"`
	SkillPath       string    `json:"skill_path,omitempty"`
	Findings        []Finding `json:"findings"`
	DurationSeconds float64   `json:"scan_duration_seconds,omitempty"`
}

// MaxSeverity is the most severe finding label, or SAFE when there are none.
func (r ScanResult) MaxSeverity() Severity {
	maxSev := SeveritySafe
	for _, f := range r.Findings {
		if f.Severity.IsKnown() && f.Severity.Rank() < maxSev.Rank() {
			maxSev = ParseSeverity(string(f.Severity))
		}
	}
	return maxSev
}

// IsSafe reports whether the skill has no HIGH or CRITICAL findings.
func (r ScanResult) IsSafe() bool {
	for _, f := range r.Findings {
		if f.Severity.AtLeast(SeverityHigh) {
			return false
		}
	}
	return true
}

// CountBySeverity returns the number of findings carrying sev.
func (r ScanResult) CountBySeverity(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if ParseSeverity(string(f.Severity)) == sev {
			n++
		}
	}
	return n
}

// Clone returns a copy that shares no slice storage with r.
func (r ScanResult) Clone() ScanResult {
	out := r
	out.Findings = append([]Finding(nil), r.Findings...)
	return out
}

type scanResultJSON struct {
	SkillName       string    `json:"skill_name"`
	SkillPath       string    `json:"skill_path,omitempty"`
	Findings        []Finding `json:"findings"`
	DurationSeconds float64   `json:"scan_duration_seconds,omitempty"`
	MaxSeverity     Severity  `json:"max_severity"`
	IsSafe          bool      `json:"is_safe"`
}

// MarshalJSON adds the derived max_severity and is_safe fields.
func (r ScanResult) MarshalJSON() ([]byte, error) {
	findings := r.Findings
	if findings == nil {
		findings = []Finding{}
	}
	return json.Marshal(scanResultJSON{
		SkillName:       r.SkillName,
		SkillPath:       r.SkillPath,
		Findings:        findings,
		DurationSeconds: r.DurationSeconds,
		MaxSeverity:     r.MaxSeverity(),
		IsSafe:          r.IsSafe(),
	})
}
