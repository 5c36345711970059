package models

// AllowlistDocument is the on-disk shape of an allowlist policy file.
type AllowlistDocument struct {
	Version     any             `json:"version,omitempty" yaml:"version,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []AllowlistRule `json:"rules" yaml:"rules"`
}

// AllowlistRule describes which findings to suppress and why.
// Every empty match field acts as a wildcard.
type AllowlistRule struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Skill         string `json:"skill,omitempty" yaml:"skill,omitempty"`
	RuleID        string `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	Analyzer      string `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Severity      string `json:"severity,omitempty" yaml:"severity,omitempty"`
	FilePath      string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	TitleContains string `json:"title_contains,omitempty" yaml:"title_contains,omitempty"`
	Owner         string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Reason        string `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedAt     string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`

	// SourceFile is set by the loader; it is never read from policy files.
	SourceFile string `json:"source_file,omitempty" yaml:"-"`
}

// IsEnabled defaults to true when the field is absent.
func (r AllowlistRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IsWildcard reports whether the rule has no match fields at all and so
// suppresses every finding it is evaluated against.
func (r AllowlistRule) IsWildcard() bool {
	return r.Skill == "" &&
		r.RuleID == "" &&
		r.Analyzer == "" &&
		r.Severity == "" &&
		r.FilePath == "" &&
		r.TitleContains == ""
}

// BoolPtr is a helper for the optional Enabled field.
func BoolPtr(b bool) *bool { return &b }

// SuppressionRecord is the audit trail entry for one suppressed finding.
type SuppressionRecord struct {
	Skill           string   `json:"skill"`
	FindingID       string   `json:"finding_id"`
	RuleID          string   `json:"rule_id"`
	Severity        Severity `json:"severity"`
	Title           string   `json:"title"`
	FilePath        string   `json:"file_path,omitempty"`
	Analyzer        string   `json:"analyzer,omitempty"`
	AllowlistRuleID string   `json:"allowlist_rule_id"`
	AllowlistSource string   `json:"allowlist_source"`
	Reason          string   `json:"reason,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	ExpiresAt       string   `json:"expires_at,omitempty"`
}

// AllowlistSummary is written next to the report for auditors.
type AllowlistSummary struct {
	Sources           []string        `json:"allowlist_sources"`
	SuppressedCount   int             `json:"suppressed_count"`
	ExpiredRulesCount int             `json:"expired_rules_count"`
	ExpiredRules      []AllowlistRule `json:"expired_rules"`
}
