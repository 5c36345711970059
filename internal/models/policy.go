package models

// PolicyMode decides whether warn-level violations fail a lint run.
type PolicyMode string

const (
	PolicyModeStrict PolicyMode = "strict"
	PolicyModeWarn   PolicyMode = "warn"
)

// PolicySeverity of a single lint rule.
type PolicySeverity string

const (
	PolicySeverityError PolicySeverity = "error"
	PolicySeverityWarn  PolicySeverity = "warn"
)

// PolicyConfig is an allowlist hygiene policy loaded from YAML.
type PolicyConfig struct {
	Name  string       `yaml:"name"`
	Mode  PolicyMode   `yaml:"mode,omitempty"`
	Rules []PolicyRule `yaml:"rules"`
}

// PolicyRule is one CEL expression evaluated against each allowlist rule.
// The expression must return true for a compliant rule.
type PolicyRule struct {
	Name       string         `yaml:"name"`
	Expr       string         `yaml:"expr"`
	FailureMsg string         `yaml:"failure_msg"`
	Severity   PolicySeverity `yaml:"severity,omitempty"`
}

// PolicyResult is the outcome of one PolicyRule against one allowlist rule.
type PolicyResult struct {
	RuleName        string         `json:"rule"`
	AllowlistRuleID string         `json:"allowlist_rule_id"`
	Source          string         `json:"source,omitempty"`
	Passed          bool           `json:"passed"`
	Severity        PolicySeverity `json:"severity"`
	FailureMsg      string         `json:"failure_msg,omitempty"`
}
