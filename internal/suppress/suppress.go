// Package suppress applies allowlist rules to scan results and records
// the provenance of every suppressed finding.
package suppress

import (
	"github.com/leppikallio/pai-opencode/internal/allowlist"
	"github.com/leppikallio/pai-opencode/internal/models"
)

// FilterOne splits result's findings into kept and suppressed. The first
// rule in order that matches a finding is credited with it. result is not
// modified.
func FilterOne(result models.ScanResult, rules []models.AllowlistRule) (models.ScanResult, []models.SuppressionRecord) {
	out := result
	out.Findings = make([]models.Finding, 0, len(result.Findings))
	if len(rules) == 0 {
		out.Findings = append(out.Findings, result.Findings...)
		return out, nil
	}

	var records []models.SuppressionRecord
	for _, f := range result.Findings {
		rule, ok := allowlist.FirstMatch(rules, f, result.SkillName)
		if !ok {
			out.Findings = append(out.Findings, f)
			continue
		}
		records = append(records, record(result.SkillName, f, rule))
	}
	return out, records
}

// FilterAggregate filters every result of report and returns a new report
// whose summary is derived from the kept findings. The original timestamp
// is carried over.
func FilterAggregate(report *models.Report, rules []models.AllowlistRule) (*models.Report, []models.SuppressionRecord) {
	if report == nil {
		return nil, nil
	}

	filtered := make([]models.ScanResult, 0, len(report.Results))
	var records []models.SuppressionRecord
	for _, res := range report.Results {
		kept, recs := FilterOne(res, rules)
		filtered = append(filtered, kept)
		records = append(records, recs...)
	}

	out := models.NewReport(filtered...)
	if !report.Summary.Timestamp.IsZero() {
		out.Summary.Timestamp = report.Summary.Timestamp
	}
	return out, records
}

// BuildSummary assembles the allowlist audit summary for a run.
func BuildSummary(sources []string, records []models.SuppressionRecord, expired []models.AllowlistRule) models.AllowlistSummary {
	s := models.AllowlistSummary{
		Sources:           append([]string{}, sources...),
		SuppressedCount:   len(records),
		ExpiredRulesCount: len(expired),
		ExpiredRules:      append([]models.AllowlistRule{}, expired...),
	}
	return s
}

func record(skill string, f models.Finding, rule models.AllowlistRule) models.SuppressionRecord {
	return models.SuppressionRecord{
		Skill:           skill,
		FindingID:       f.ID,
		RuleID:          f.RuleID,
		Severity:        f.Severity,
		Title:           f.Title,
		FilePath:        f.FilePath,
		Analyzer:        f.Analyzer,
		AllowlistRuleID: rule.ID,
		AllowlistSource: rule.SourceFile,
		Reason:          rule.Reason,
		Owner:           rule.Owner,
		ExpiresAt:       rule.ExpiresAt,
	}
}
