package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/leppikallio/pai-opencode/internal/models"
)

const (
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
	sarifVersion = "2.1.0"
	toolName     = "skillvet"
)

type sarifDocument struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	ShortDescription *sarifMessage       `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifConfiguration `json:"defaultConfiguration,omitempty"`
	Properties       map[string]any      `json:"properties,omitempty"`
}

type sarifConfiguration struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID       string             `json:"ruleId"`
	Level        string             `json:"level"`
	Message      sarifMessage       `json:"message"`
	Locations    []sarifLocation    `json:"locations,omitempty"`
	Fingerprints map[string]string  `json:"fingerprints,omitempty"`
	Suppressions []sarifSuppression `json:"suppressions,omitempty"`
	Properties   map[string]any     `json:"properties,omitempty"`
}

type sarifSuppression struct {
	Kind          string `json:"kind"`
	Justification string `json:"justification,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// buildSARIF renders kept findings as results and suppressed findings as
// results carrying an external suppression.
func buildSARIF(report *models.Report, suppressed []models.SuppressionRecord, version string) ([]byte, error) {
	rules := make(map[string]sarifRule)
	addRule := func(id string, sev models.Severity, title string) {
		if _, ok := rules[id]; ok {
			return
		}
		rules[id] = sarifRule{
			ID:               id,
			ShortDescription: &sarifMessage{Text: title},
			DefaultConfig:    &sarifConfiguration{Level: sev.SARIFLevel()},
			Properties: map[string]any{
				"tags":              []string{"security"},
				"security-severity": sev.SARIFScore(),
			},
		}
	}

	results := make([]sarifResult, 0, report.Summary.TotalFindings+len(suppressed))
	for _, res := range report.Results {
		for _, f := range res.Findings {
			addRule(f.RuleID, f.Severity, f.Title)
			results = append(results, sarifResult{
				RuleID:       f.RuleID,
				Level:        f.Severity.SARIFLevel(),
				Message:      sarifMessage{Text: message(res.SkillName, f.Title, f.Description)},
				Locations:    locations(res.SkillPath, f.FilePath, f.LineNumber),
				Fingerprints: map[string]string{"matchBasedId/v1": fingerprint(res.SkillName, f.RuleID, f.FilePath, f.LineNumber)},
				Properties: map[string]any{
					"skill":    res.SkillName,
					"severity": f.Severity.Label(),
				},
			})
		}
	}
	for _, s := range suppressed {
		addRule(s.RuleID, s.Severity, s.Title)
		results = append(results, sarifResult{
			RuleID:       s.RuleID,
			Level:        s.Severity.SARIFLevel(),
			Message:      sarifMessage{Text: message(s.Skill, s.Title, "")},
			Locations:    locations("", s.FilePath, 0),
			Fingerprints: map[string]string{"matchBasedId/v1": fingerprint(s.Skill, s.RuleID, s.FilePath, 0)},
			Suppressions: []sarifSuppression{{
				Kind:          "external",
				Justification: fmt.Sprintf("%s (%s)", s.Reason, s.AllowlistRuleID),
			}},
			Properties: map[string]any{
				"skill":    s.Skill,
				"severity": s.Severity.Label(),
			},
		})
	}

	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	driver := sarifDriver{Name: toolName, Version: version}
	for _, id := range ids {
		driver.Rules = append(driver.Rules, rules[id])
	}

	return marshal(sarifDocument{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs:    []sarifRun{{Tool: sarifTool{Driver: driver}, Results: results}},
	})
}

func message(skill, title, description string) string {
	if description != "" {
		return fmt.Sprintf("[%s] %s: %s", skill, title, description)
	}
	return fmt.Sprintf("[%s] %s", skill, title)
}

func locations(skillPath, file string, line int) []sarifLocation {
	if file == "" {
		return nil
	}
	loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
		ArtifactLocation: sarifArtifactLocation{URI: file},
	}}
	if line > 0 {
		loc.PhysicalLocation.Region = &sarifRegion{StartLine: line}
	}
	return []sarifLocation{loc}
}

func fingerprint(skill, ruleID, file string, line int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", skill, ruleID, file, line)))
	return hex.EncodeToString(sum[:])
}
