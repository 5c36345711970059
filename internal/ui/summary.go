package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leppikallio/pai-opencode/internal/models"
)

var summaryOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

// SummaryText renders the plain summary written to summary.txt and
// echoed to the console.
func SummaryText(report *models.Report, mode string, allow models.AllowlistSummary) string {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "Skill security scan (%s)\n", mode)
	fmt.Fprintf(&b, "Scanned at: %s\n", s.Timestamp.UTC().Format("2006-01-02 15:04:05Z"))
	fmt.Fprintf(&b, "Skills scanned: %d (safe: %d)\n", s.TotalSkillsScanned, s.SafeSkills)
	fmt.Fprintf(&b, "Total findings: %d\n", s.TotalFindings)
	counts := severityCounts(s.FindingsBySeverity)
	for _, sev := range summaryOrder {
		fmt.Fprintf(&b, "  %-8s %d\n", sev.Label()+":", counts[sev])
	}
	if len(allow.Sources) > 0 {
		fmt.Fprintf(&b, "Suppressed by allowlist: %d\n", allow.SuppressedCount)
	}
	if allow.ExpiredRulesCount > 0 {
		fmt.Fprintf(&b, "Expired allowlist rules: %d\n", allow.ExpiredRulesCount)
	}

	for _, res := range report.Results {
		fmt.Fprintf(&b, "\n%s  max=%s findings=%d\n", res.SkillName, res.MaxSeverity(), len(res.Findings))
		for _, f := range sortedFindings(res.Findings) {
			fmt.Fprintf(&b, "  %-8s %s  %s%s\n", f.Severity.Label(), f.RuleID, f.Title, location(f))
		}
	}
	return b.String()
}

func severityCounts(c models.SeverityCounts) map[models.Severity]int {
	return map[models.Severity]int{
		models.SeverityCritical: c.Critical,
		models.SeverityHigh:     c.High,
		models.SeverityMedium:   c.Medium,
		models.SeverityLow:      c.Low,
		models.SeverityInfo:     c.Info,
	}
}

func sortedFindings(in []models.Finding) []models.Finding {
	out := append([]models.Finding(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

func location(f models.Finding) string {
	switch {
	case f.FilePath == "":
		return ""
	case f.LineNumber > 0:
		return fmt.Sprintf(" (%s:%d)", f.FilePath, f.LineNumber)
	default:
		return " (" + f.FilePath + ")"
	}
}
