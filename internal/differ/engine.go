// Package differ compares two scan reports finding by finding.
package differ

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/wI2L/jsondiff"
)

// DiffType indicates what kind of difference was detected
type DiffType string

const (
	DiffTypeAdded   DiffType = "added"
	DiffTypeRemoved DiffType = "removed"
	DiffTypeChanged DiffType = "changed"
)

// FindingDiff is the difference for one finding key.
type FindingDiff struct {
	Skill        string          `json:"skill"`
	Key          string          `json:"key"`
	DiffType     DiffType        `json:"type"`
	Finding      models.Finding  `json:"finding"`
	Previous     *models.Finding `json:"previous,omitempty"`
	Level        SeverityLevel   `json:"-"`
	Patches      jsondiff.Patch  `json:"-"`
	Translations []string        `json:"translations,omitempty"`
}

// Result contains the complete diff result
type Result struct {
	HasChanges    bool          `json:"has_changes"`
	SkillsAdded   []string      `json:"skills_added"`
	SkillsRemoved []string      `json:"skills_removed"`
	Diffs         []FindingDiff `json:"findings"`
}

// Count returns how many diffs have type t.
func (r *Result) Count(t DiffType) int {
	n := 0
	for _, d := range r.Diffs {
		if d.DiffType == t {
			n++
		}
	}
	return n
}

type keyed struct {
	skill   string
	finding models.Finding
}

// Compare diffs two reports. Findings are keyed by skill and finding id;
// findings without an id fall back to rule_id, file path and line.
// Output is sorted by skill then key.
func Compare(oldReport, newReport *models.Report) (*Result, error) {
	oldIdx, oldSkills := index(oldReport)
	newIdx, newSkills := index(newReport)

	result := &Result{
		SkillsAdded:   []string{},
		SkillsRemoved: []string{},
		Diffs:         []FindingDiff{},
	}

	for skill := range newSkills {
		if !oldSkills[skill] {
			result.SkillsAdded = append(result.SkillsAdded, skill)
		}
	}
	for skill := range oldSkills {
		if !newSkills[skill] {
			result.SkillsRemoved = append(result.SkillsRemoved, skill)
		}
	}
	sort.Strings(result.SkillsAdded)
	sort.Strings(result.SkillsRemoved)

	for key, prev := range oldIdx {
		if _, found := newIdx[key]; found {
			continue
		}
		result.Diffs = append(result.Diffs, FindingDiff{
			Skill:        prev.skill,
			Key:          key,
			DiffType:     DiffTypeRemoved,
			Finding:      prev.finding,
			Level:        SeveritySafe,
			Translations: []string{"Finding no longer reported."},
		})
	}

	for key, cur := range newIdx {
		prev, found := oldIdx[key]
		if !found {
			result.Diffs = append(result.Diffs, FindingDiff{
				Skill:        cur.skill,
				Key:          key,
				DiffType:     DiffTypeAdded,
				Finding:      cur.finding,
				Level:        addedLevel(cur.finding.Severity),
				Translations: []string{"New " + models.ParseSeverity(string(cur.finding.Severity)).Label() + " finding."},
			})
			continue
		}

		patches, err := ComputeFindingDiff(prev.finding, cur.finding)
		if err != nil {
			return nil, fmt.Errorf("failed to compare finding %s: %w", key, err)
		}
		if len(patches) == 0 {
			continue
		}
		before := prev.finding
		translations := Translate(patches, before, cur.finding)
		result.Diffs = append(result.Diffs, FindingDiff{
			Skill:        cur.skill,
			Key:          key,
			DiffType:     DiffTypeChanged,
			Finding:      cur.finding,
			Previous:     &before,
			Level:        GetSeverity(translations),
			Patches:      patches,
			Translations: translations,
		})
	}

	sort.Slice(result.Diffs, func(i, j int) bool {
		a, b := result.Diffs[i], result.Diffs[j]
		if a.Skill != b.Skill {
			return a.Skill < b.Skill
		}
		return a.Key < b.Key
	})

	result.HasChanges = len(result.Diffs) > 0 ||
		len(result.SkillsAdded) > 0 ||
		len(result.SkillsRemoved) > 0
	return result, nil
}

// ComputeFindingDiff returns the JSON patch turning before into after.
// Skill and id are part of the key and are excluded.
func ComputeFindingDiff(before, after models.Finding) (jsondiff.Patch, error) {
	before.Skill, before.ID = "", ""
	after.Skill, after.ID = "", ""

	src, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal previous finding: %w", err)
	}
	dst, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current finding: %w", err)
	}

	patches, err := jsondiff.CompareJSON(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	return patches, nil
}

// FindingKey identifies f within its skill.
func FindingKey(f models.Finding) string {
	if f.ID != "" {
		return f.ID
	}
	return f.RuleID + ":" + f.FilePath + ":" + strconv.Itoa(f.LineNumber)
}

func index(report *models.Report) (map[string]keyed, map[string]bool) {
	idx := make(map[string]keyed)
	skills := make(map[string]bool)
	if report == nil {
		return idx, skills
	}

	for _, res := range report.Results {
		skills[res.SkillName] = true
		for _, f := range res.Findings {
			skill := f.Skill
			if skill == "" {
				skill = res.SkillName
			}
			base := skill + "/" + FindingKey(f)
			key := base
			for n := 2; ; n++ {
				if _, dup := idx[key]; !dup {
					break
				}
				key = base + "#" + strconv.Itoa(n)
			}
			idx[key] = keyed{skill: skill, finding: f}
		}
	}
	return idx, skills
}

func addedLevel(sev models.Severity) SeverityLevel {
	if sev.AtLeast(models.SeverityHigh) {
		return SeverityCritical
	}
	return SeverityModerate
}
