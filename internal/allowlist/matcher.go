package allowlist

import (
	"strings"

	"github.com/leppikallio/pai-opencode/internal/models"
)

// Matches reports whether rule applies to finding f reported for skill.
// Every populated rule field must match; empty fields match anything.
func Matches(rule models.AllowlistRule, f models.Finding, skill string) bool {
	if rule.Skill != "" && rule.Skill != skill {
		return false
	}
	if rule.RuleID != "" && rule.RuleID != f.RuleID {
		return false
	}
	if rule.Analyzer != "" && rule.Analyzer != f.Analyzer {
		return false
	}
	if rule.Severity != "" && !strings.EqualFold(rule.Severity, string(f.Severity)) {
		return false
	}
	if rule.TitleContains != "" &&
		!strings.Contains(strings.ToLower(f.Title), strings.ToLower(rule.TitleContains)) {
		return false
	}

	if rulePath := normalizePath(rule.FilePath); rulePath != "" {
		findingPath := normalizePath(f.FilePath)
		if findingPath == "" {
			return false
		}
		if findingPath != rulePath && !strings.HasSuffix(findingPath, rulePath) {
			return false
		}
	}

	return true
}

// FirstMatch returns the first rule in order that matches f.
func FirstMatch(rules []models.AllowlistRule, f models.Finding, skill string) (models.AllowlistRule, bool) {
	for _, r := range rules {
		if Matches(r, f, skill) {
			return r, true
		}
	}
	return models.AllowlistRule{}, false
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
