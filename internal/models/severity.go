package models

import "strings"

// Severity label attached to a finding by the analyzer.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
	SeveritySafe     Severity = "SAFE"
)

// rankUnknown sorts after every known label.
const rankUnknown = 99

// ParseSeverity is case-insensitive. Unrecognised labels are returned
// upper-cased and rank as unknown.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToUpper(strings.TrimSpace(s)))
}

// Rank orders severities from most to least severe:
// CRITICAL=0, HIGH=1, MEDIUM=2, LOW=3, INFO=4, SAFE=5, unknown=99.
func (s Severity) Rank() int {
	switch ParseSeverity(string(s)) {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	case SeveritySafe:
		return 5
	default:
		return rankUnknown
	}
}

// IsKnown reports whether s is one of the recognised labels.
func (s Severity) IsKnown() bool {
	return s.Rank() != rankUnknown
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.IsKnown() && s.Rank() <= other.Rank()
}

// Label returns the canonical upper-case form.
func (s Severity) Label() string {
	return string(ParseSeverity(string(s)))
}

func (s Severity) String() string {
	return s.Label()
}

// SARIFLevel maps the severity to a SARIF result level.
func (s Severity) SARIFLevel() string {
	switch ParseSeverity(string(s)) {
	case SeverityCritical, SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// SARIFScore is the GitHub security-severity value for the severity.
func (s Severity) SARIFScore() string {
	switch ParseSeverity(string(s)) {
	case SeverityCritical:
		return "9.5"
	case SeverityHigh:
		return "8.0"
	case SeverityMedium:
		return "5.5"
	case SeverityLow:
		return "2.0"
	default:
		return "0.0"
	}
}
