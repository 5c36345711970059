package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/leppikallio/pai-opencode/internal/models"
)

// Engine evaluates allowlist hygiene policies with CEL.
type Engine struct {
	env *cel.Env
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// Report is the outcome of linting a set of allowlist rules.
// Results holds violations only.
type Report struct {
	Policy  string                `json:"policy"`
	Mode    models.PolicyMode     `json:"mode"`
	Checked int                   `json:"checked"`
	Results []models.PolicyResult `json:"violations"`
}

// Errors counts error-severity violations.
func (r *Report) Errors() int {
	return r.count(models.PolicySeverityError)
}

// Warnings counts warn-severity violations.
func (r *Report) Warnings() int {
	return r.count(models.PolicySeverityWarn)
}

func (r *Report) count(sev models.PolicySeverity) int {
	n := 0
	for _, res := range r.Results {
		if res.Severity == sev {
			n++
		}
	}
	return n
}

// Failed reports whether the run should block. Strict mode promotes
// warnings to failures.
func (r *Report) Failed() bool {
	if r.Errors() > 0 {
		return true
	}
	return r.Mode == models.PolicyModeStrict && r.Warnings() > 0
}

type compiledRule struct {
	rule     models.PolicyRule
	severity models.PolicySeverity
	prg      cel.Program
}

// Lint evaluates every policy rule against every allowlist rule. Compile
// errors abort the run; evaluation errors count as violations.
func (e *Engine) Lint(config *models.PolicyConfig, rules []models.AllowlistRule, now time.Time) (*Report, error) {
	compiled, err := e.compile(config)
	if err != nil {
		return nil, err
	}

	mode := config.Mode
	if mode == "" {
		mode = models.PolicyModeWarn
	}
	report := &Report{
		Policy:  config.Name,
		Mode:    mode,
		Checked: len(rules),
		Results: []models.PolicyResult{},
	}

	for _, ar := range rules {
		input := RuleInput(ar, now)
		for _, cr := range compiled {
			res := e.evaluate(cr, input)
			if res.Passed {
				continue
			}
			res.AllowlistRuleID = ar.ID
			res.Source = ar.SourceFile
			report.Results = append(report.Results, res)
		}
	}
	return report, nil
}

func (e *Engine) compile(config *models.PolicyConfig) ([]compiledRule, error) {
	if err := e.CompileAndValidate(config); err != nil {
		return nil, err
	}

	out := make([]compiledRule, 0, len(config.Rules))
	for _, rule := range config.Rules {
		ast, _ := e.env.Compile(rule.Expr)
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: CEL program error: %w", rule.Name, err)
		}
		out = append(out, compiledRule{
			rule:     rule,
			severity: effectiveSeverity(rule, config.Mode),
			prg:      prg,
		})
	}
	return out, nil
}

func effectiveSeverity(rule models.PolicyRule, mode models.PolicyMode) models.PolicySeverity {
	if rule.Severity != "" {
		return rule.Severity
	}
	if mode == models.PolicyModeStrict {
		return models.PolicySeverityError
	}
	return models.PolicySeverityWarn
}

func (e *Engine) evaluate(cr compiledRule, input map[string]interface{}) models.PolicyResult {
	result := models.PolicyResult{
		RuleName: cr.rule.Name,
		Severity: cr.severity,
	}

	out, _, err := cr.prg.Eval(map[string]interface{}{
		"input": input,
	})
	if err != nil {
		result.FailureMsg = fmt.Sprintf("CEL evaluation error: %v", err)
		return result
	}

	passed, ok := out.Value().(bool)
	if !ok {
		result.FailureMsg = fmt.Sprintf("rule expression must return boolean, got %T", out.Value())
		return result
	}

	result.Passed = passed
	if !passed {
		result.FailureMsg = cr.rule.FailureMsg
	}
	return result
}

// CompileAndValidate checks every expression without evaluating it.
func (e *Engine) CompileAndValidate(config *models.PolicyConfig) error {
	if config == nil {
		return fmt.Errorf("policy is nil")
	}

	var errs []string
	for _, rule := range config.Rules {
		if rule.Name == "" {
			errs = append(errs, "rule with empty name")
			continue
		}
		switch rule.Severity {
		case "", models.PolicySeverityError, models.PolicySeverityWarn:
		default:
			errs = append(errs, fmt.Sprintf("rule %q: unknown severity %q", rule.Name, rule.Severity))
			continue
		}
		if _, issues := e.env.Compile(rule.Expr); issues != nil && issues.Err() != nil {
			errs = append(errs, fmt.Sprintf("rule %q: %v", rule.Name, issues.Err()))
		}
	}

	switch config.Mode {
	case "", models.PolicyModeWarn, models.PolicyModeStrict:
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", config.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("policy validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return nil
}
