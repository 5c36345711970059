package differ

import (
	"fmt"
	"strings"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/wI2L/jsondiff"
)

// Translate turns finding patches into short sentences.
func Translate(patches jsondiff.Patch, before, after models.Finding) []string {
	if len(patches) == 0 {
		return nil
	}

	var translations []string
	seen := make(map[string]bool)

	for _, op := range patches {
		translation := translateOperation(op, before, after)
		if translation != "" && !seen[translation] {
			seen[translation] = true
			translations = append(translations, translation)
		}
	}

	return translations
}

func translateOperation(op jsondiff.Operation, before, after models.Finding) string {
	field := strings.TrimPrefix(op.Path, "/")
	if i := strings.Index(field, "/"); i >= 0 {
		field = field[:i]
	}

	switch op.Type {
	case jsondiff.OperationAdd:
		return fmt.Sprintf("Field '%s' added.", field)
	case jsondiff.OperationRemove:
		return fmt.Sprintf("Field '%s' removed.", field)
	case jsondiff.OperationReplace:
		return translateReplace(field, before, after)
	default:
		return ""
	}
}

func translateReplace(field string, before, after models.Finding) string {
	switch field {
	case "severity":
		from := models.ParseSeverity(string(before.Severity))
		to := models.ParseSeverity(string(after.Severity))
		if to.Rank() < from.Rank() {
			return fmt.Sprintf("⚠️  Severity raised from %s to %s.", from, to)
		}
		return fmt.Sprintf("Severity lowered from %s to %s.", from, to)
	case "line_number":
		return fmt.Sprintf("Moved from line %d to line %d.", before.LineNumber, after.LineNumber)
	case "file_path":
		return fmt.Sprintf("Moved from %s to %s.", before.FilePath, after.FilePath)
	case "rule_id":
		return fmt.Sprintf("Rule changed from %s to %s.", before.RuleID, after.RuleID)
	case "description", "remediation", "title":
		return "Documentation update: " + field + " has changed."
	default:
		return fmt.Sprintf("Field '%s' modified.", field)
	}
}

// SeverityLevel ranks how much a report change matters for review.
type SeverityLevel int

const (
	SeveritySafe SeverityLevel = iota
	SeverityModerate
	SeverityCritical
)

// String returns the --fail-on name of the level; safe changes are "info".
func (l SeverityLevel) String() string {
	switch l {
	case SeverityCritical:
		return "critical"
	case SeverityModerate:
		return "moderate"
	case SeveritySafe:
		return "info"
	default:
		return "unknown"
	}
}

// GetSeverity classifies a set of translations by the worst one.
func GetSeverity(translations []string) SeverityLevel {
	level := SeveritySafe
	for _, t := range translations {
		if l := classify(t); l > level {
			level = l
		}
	}
	return level
}

func classify(translation string) SeverityLevel {
	if strings.Contains(translation, "⚠️") {
		return SeverityCritical
	}
	if strings.HasPrefix(translation, "Documentation update") {
		return SeveritySafe
	}
	return SeverityModerate
}
