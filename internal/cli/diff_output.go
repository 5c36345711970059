package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leppikallio/pai-opencode/internal/differ"
	"github.com/leppikallio/pai-opencode/internal/ui"
)

// FailOnLevel threshold for failure
type FailOnLevel string

const (
	FailOnNone     FailOnLevel = "none"
	FailOnCritical FailOnLevel = "critical"
	FailOnModerate FailOnLevel = "moderate"
	FailOnInfo     FailOnLevel = "info"
)

// ParseFailOnLevel from string
func ParseFailOnLevel(s string) (FailOnLevel, error) {
	switch strings.ToLower(s) {
	case "none":
		return FailOnNone, nil
	case "critical":
		return FailOnCritical, nil
	case "moderate":
		return FailOnModerate, nil
	case "info":
		return FailOnInfo, nil
	default:
		return "", fmt.Errorf("invalid fail-on level: %s (use none, critical, moderate, or info)", s)
	}
}

// ShouldFail checks limits
func (f FailOnLevel) ShouldFail(severity differ.SeverityLevel) bool {
	switch f {
	case FailOnNone:
		return false
	case FailOnCritical:
		return severity == differ.SeverityCritical
	case FailOnModerate:
		return severity >= differ.SeverityModerate
	case FailOnInfo:
		return true
	default:
		return severity == differ.SeverityCritical
	}
}

// DiffOutput is the machine-readable result of `skillvet diff`.
type DiffOutput struct {
	OldReport     string           `json:"old_report"`
	NewReport     string           `json:"new_report"`
	Summary       DiffSummary      `json:"summary"`
	SkillsAdded   []string         `json:"skills_added"`
	SkillsRemoved []string         `json:"skills_removed"`
	Findings      []DiffOutputItem `json:"findings"`
	FailOn        string           `json:"fail_on"`
	Outcome       string           `json:"outcome"` // "PASS" or "FAIL"
}

// DiffSummary by change level
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Changed  int `json:"changed"`
	Critical int `json:"critical"`
	Moderate int `json:"moderate"`
	Info     int `json:"info"`
}

// DiffOutputItem detail
type DiffOutputItem struct {
	Type         string   `json:"type"`
	Level        string   `json:"level"`
	Skill        string   `json:"skill"`
	Key          string   `json:"key"`
	RuleID       string   `json:"rule_id"`
	Severity     string   `json:"severity"`
	Title        string   `json:"title"`
	Translations []string `json:"translations,omitempty"`
}

// BuildDiffOutput from components
func BuildDiffOutput(oldPath, newPath string, result *differ.Result, failOn FailOnLevel) *DiffOutput {
	out := &DiffOutput{
		OldReport:     oldPath,
		NewReport:     newPath,
		SkillsAdded:   result.SkillsAdded,
		SkillsRemoved: result.SkillsRemoved,
		Findings:      []DiffOutputItem{},
		FailOn:        string(failOn),
		Outcome:       "PASS",
	}

	for _, d := range result.Diffs {
		out.Findings = append(out.Findings, DiffOutputItem{
			Type:         string(d.DiffType),
			Level:        d.Level.String(),
			Skill:        d.Skill,
			Key:          d.Key,
			RuleID:       d.Finding.RuleID,
			Severity:     d.Finding.Severity.Label(),
			Title:        d.Finding.Title,
			Translations: d.Translations,
		})

		switch d.DiffType {
		case differ.DiffTypeAdded:
			out.Summary.Added++
		case differ.DiffTypeRemoved:
			out.Summary.Removed++
		case differ.DiffTypeChanged:
			out.Summary.Changed++
		}
		switch d.Level {
		case differ.SeverityCritical:
			out.Summary.Critical++
		case differ.SeverityModerate:
			out.Summary.Moderate++
		default:
			out.Summary.Info++
		}

		if failOn.ShouldFail(d.Level) {
			out.Outcome = "FAIL"
		}
	}

	return out
}

// FormatTextOutput human readable
func FormatTextOutput(result *DiffOutput, p *ui.Printer) string {
	var sb strings.Builder

	outcome := p.Level("info", "PASS")
	if result.Outcome != "PASS" {
		outcome = p.Level("critical", "FAIL")
	}
	sb.WriteString(fmt.Sprintf("skillvet diff: %s (fail-on=%s)\n", outcome, result.FailOn))
	sb.WriteString(fmt.Sprintf("Old: %s\n", result.OldReport))
	sb.WriteString(fmt.Sprintf("New: %s\n", result.NewReport))
	sb.WriteString(fmt.Sprintf("Findings: +%d -%d ~%d\n\n",
		result.Summary.Added, result.Summary.Removed, result.Summary.Changed))

	for _, s := range result.SkillsAdded {
		sb.WriteString(fmt.Sprintf("[+] skill %s\n", s))
	}
	for _, s := range result.SkillsRemoved {
		sb.WriteString(fmt.Sprintf("[-] skill %s\n", s))
	}
	if len(result.SkillsAdded)+len(result.SkillsRemoved) > 0 {
		sb.WriteString("\n")
	}

	if len(result.Findings) == 0 {
		sb.WriteString(p.Level("info", "✓ No finding changes") + "\n")
		return sb.String()
	}

	for _, level := range []string{"critical", "moderate", "info"} {
		var items []DiffOutputItem
		for _, f := range result.Findings {
			if f.Level == level {
				items = append(items, f)
			}
		}
		if len(items) == 0 {
			continue
		}
		sb.WriteString(p.Level(level, fmt.Sprintf("%s (%d)", strings.ToUpper(level), len(items))) + "\n")
		for _, f := range items {
			sb.WriteString(fmt.Sprintf("[%s] %s %s  %s\n", diffIcon(f.Type), f.Key, f.Severity, f.Title))
			for _, t := range f.Translations {
				sb.WriteString(fmt.Sprintf("    • %s\n", t))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func diffIcon(t string) string {
	switch differ.DiffType(t) {
	case differ.DiffTypeAdded:
		return "+"
	case differ.DiffTypeRemoved:
		return "-"
	default:
		return "~"
	}
}

// FormatJSONOutput raw json
func FormatJSONOutput(result *DiffOutput) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
