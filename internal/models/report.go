package models

import (
	"encoding/json"
	"time"
)

// SeverityCounts is the per-severity breakdown carried in a report summary.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Summary holds the aggregate numbers of a Report. It is always derived
// from the report's results and never edited in place.
type Summary struct {
	TotalSkillsScanned int            `json:"total_skills_scanned"`
	SafeSkills         int            `json:"safe_skills"`
	TotalFindings      int            `json:"total_findings"`
	FindingsBySeverity SeverityCounts `json:"findings_by_severity"`
	Timestamp          time.Time      `json:"timestamp"`
}

// CriticalCount is the number of CRITICAL findings.
func (s Summary) CriticalCount() int { return s.FindingsBySeverity.Critical }

// HighCount is the number of HIGH findings.
func (s Summary) HighCount() int { return s.FindingsBySeverity.High }

// Report aggregates the scan results of one invocation.
type Report struct {
	Results []ScanResult `json:"results"`
	Summary Summary      `json:"summary"`
}

// NewReport builds a report from results, computing the summary from scratch.
func NewReport(results ...ScanResult) *Report {
	r := &Report{Results: []ScanResult{}}
	r.Summary.Timestamp = time.Now().UTC()
	r.Results = append(r.Results, results...)
	r.recount()
	return r
}

// Add appends one result and re-derives the summary.
func (r *Report) Add(res ScanResult) {
	r.Results = append(r.Results, res)
	r.recount()
}

// Len is the number of results in the report.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results)
}

// recount rebuilds every summary counter from r.Results.
func (r *Report) recount() {
	ts := r.Summary.Timestamp
	s := Summary{Timestamp: ts}
	for _, res := range r.Results {
		s.TotalSkillsScanned++
		if res.IsSafe() {
			s.SafeSkills++
		}
		for _, f := range res.Findings {
			s.TotalFindings++
			switch ParseSeverity(string(f.Severity)) {
			case SeverityCritical:
				s.FindingsBySeverity.Critical++
			case SeverityHigh:
				s.FindingsBySeverity.High++
			case SeverityMedium:
				s.FindingsBySeverity.Medium++
			case SeverityLow:
				s.FindingsBySeverity.Low++
			case SeverityInfo:
				s.FindingsBySeverity.Info++
			}
		}
	}
	r.Summary = s
}

// UnmarshalJSON decodes results and the timestamp only; counters are
// recomputed so a hand-edited summary cannot disagree with the findings.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw struct {
		Results []ScanResult `json:"results"`
		Summary struct {
			Timestamp time.Time `json:"timestamp"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Results = raw.Results
	if r.Results == nil {
		r.Results = []ScanResult{}
	}
	r.Summary.Timestamp = raw.Summary.Timestamp
	r.recount()
	return nil
}
