package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/leppikallio/pai-opencode/internal/allowlist"
	"github.com/leppikallio/pai-opencode/internal/artifacts"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/gate"
	"github.com/leppikallio/pai-opencode/internal/metrics"
	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	otelobs "github.com/leppikallio/pai-opencode/internal/observability/otel"
	"github.com/leppikallio/pai-opencode/internal/policy"
	"github.com/leppikallio/pai-opencode/internal/suppress"
	"github.com/leppikallio/pai-opencode/internal/ui"
	"github.com/leppikallio/pai-opencode/internal/version"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

// exitCodeOf maps a command error to the code recorded in receipts.
func exitCodeOf(err error) int {
	if err == nil {
		return exitcode.OK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return exitcode.Failure
}

// allowlistFlags select and police the suppression policy of a run.
type allowlistFlags struct {
	disabled      bool
	files         []string
	failOnExpired bool
	lintPreset    string
}

func (f *allowlistFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.disabled, "no-allowlist", false, "Ignore every allowlist file")
	cmd.Flags().StringArrayVar(&f.files, "allowlist-file", nil, "Additional allowlist file (repeatable, must exist)")
	cmd.Flags().BoolVar(&f.failOnExpired, "fail-on-expired-allowlist", false, "Exit 2 when any enabled allowlist rule has expired (implied by blocking gate profiles)")
	cmd.Flags().StringVar(&f.lintPreset, "lint-preset", "", "Lint allowlist rules before scanning: baseline, strict or a policy YAML path")
}

// load resolves, reads and checks the allowlist. Warnings go to p.
// Expired rules are fatal with --fail-on-expired-allowlist or under any
// blocking gate profile.
func (f *allowlistFlags) load(ctx context.Context, profile gate.Profile, p *ui.Printer, now func() time.Time) (*allowlist.PolicySet, error) {
	log := logging.From(ctx)

	sources, err := allowlist.ResolveSources(allowlist.SourceConfig{
		Disabled: f.disabled,
		Defaults: allowlist.DefaultLocations(),
		Explicit: append(allowlist.EnvLocations(), f.files...),
	})
	if err != nil {
		return nil, exitWith(exitcode.Failure, err)
	}

	set, err := allowlist.Load(sources, allowlist.LoadOptions{Now: now})
	if err != nil {
		log.Event(ctx, "allowlist.error", map[string]any{"level": logging.LevelError, "error": err.Error()})
		return nil, exitWith(exitcode.Failure, err)
	}
	log.Event(ctx, "allowlist.load", map[string]any{
		"sources": len(set.Sources),
		"active":  len(set.Active),
		"expired": len(set.Expired),
	})

	for _, w := range set.Warnings {
		p.Warn(w)
	}
	if n := len(set.Expired); n > 0 {
		p.Warn(fmt.Sprintf("Found %d expired allowlist rule(s)", n))
		for _, r := range set.Expired {
			p.Printf("  - %s (expires_at=%s, %s)\n", r.ID, r.ExpiresAt, r.SourceFile)
		}
		if f.failOnExpired {
			return set, exitWith(exitcode.ExpiredAllowlist,
				fmt.Errorf("%d expired allowlist rule(s) and --fail-on-expired-allowlist is set", n))
		}
		if profile != gate.Advisory {
			return set, exitWith(exitcode.ExpiredAllowlist,
				fmt.Errorf("%d expired allowlist rule(s) under gate profile %s", n, profile))
		}
	}
	return set, nil
}

// lint runs the configured CEL preset over every loaded rule.
func (f *allowlistFlags) lint(ctx context.Context, set *allowlist.PolicySet, p *ui.Printer, now time.Time) (*policy.Report, error) {
	if f.lintPreset == "" {
		return nil, nil
	}
	cfg, err := policy.Resolve(f.lintPreset)
	if err != nil {
		return nil, exitWith(exitcode.Failure, err)
	}
	report, err := lintRules(ctx, cfg, append(append([]models.AllowlistRule{}, set.Active...), set.Expired...), now)
	if err != nil {
		return nil, exitWith(exitcode.Failure, err)
	}
	printLint(p, report)
	if report.Failed() {
		return report, exitWith(exitcode.Failure, fmt.Errorf("allowlist lint %q failed: %d error(s), %d warning(s)",
			report.Policy, report.Errors(), report.Warnings()))
	}
	return report, nil
}

func lintRules(ctx context.Context, cfg *models.PolicyConfig, rules []models.AllowlistRule, now time.Time) (rep *policy.Report, err error) {
	_, span := otelobs.StartSpan(ctx, "skillvet.allowlist.lint",
		attribute.String("skillvet.lint.policy", cfg.Name),
		attribute.Int("skillvet.lint.rules", len(rules)))
	defer func() { otelobs.EndSpan(span, err) }()

	engine, err := policy.NewEngine()
	if err != nil {
		return nil, err
	}
	rep, err = engine.Lint(cfg, rules, now)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Event(ctx, "allowlist.lint", map[string]any{
		"policy":   rep.Policy,
		"checked":  rep.Checked,
		"errors":   rep.Errors(),
		"warnings": rep.Warnings(),
	})
	return rep, nil
}

func printLint(p *ui.Printer, rep *policy.Report) {
	for _, v := range rep.Results {
		label := models.SeverityMedium
		if v.Severity == models.PolicySeverityError {
			label = models.SeverityHigh
		}
		p.Printf("[lint] %s %s %s: %s (%s)\n", p.Severity(label), v.AllowlistRuleID, v.RuleName, v.FailureMsg, v.Source)
	}
	p.Printf("[lint] %s: %d rule(s) checked, %d error(s), %d warning(s)\n",
		rep.Policy, rep.Checked, rep.Errors(), rep.Warnings())
}

func lintViolations(rep *policy.Report) []string {
	if rep == nil {
		return nil
	}
	out := make([]string, 0, len(rep.Results))
	for _, v := range rep.Results {
		out = append(out, fmt.Sprintf("%s:%s", v.AllowlistRuleID, v.RuleName))
	}
	return out
}

func lintStatus(rep *policy.Report) string {
	if rep.Failed() {
		return "fail"
	}
	return "pass"
}

// filtered is a report after allowlist suppression.
type filtered struct {
	Report     *models.Report
	Suppressed []models.SuppressionRecord
	Summary    models.AllowlistSummary
}

func applyAllowlist(ctx context.Context, report *models.Report, set *allowlist.PolicySet) filtered {
	out := filtered{Report: report}
	if set.Enabled() {
		out.Report, out.Suppressed = suppress.FilterAggregate(report, set.Active)
	}
	out.Summary = suppress.BuildSummary(set.Sources, out.Suppressed, set.Expired)
	logging.From(ctx).Event(ctx, "allowlist.apply", map[string]any{
		"suppressed": len(out.Suppressed),
		"remaining":  out.Report.Summary.TotalFindings,
	})
	return out
}

// outputFlags control what a run leaves on disk.
type outputFlags struct {
	dir         string
	bundle      string
	metricsFile string
	signKey     string
}

func (f *outputFlags) register(cmd *cobra.Command, dirHelp string) {
	cmd.Flags().StringVar(&f.dir, "output-dir", "", dirHelp)
	cmd.Flags().StringVar(&f.bundle, "bundle", "", "Also write a deterministic zip of the artifacts to this path")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	cmd.Flags().StringVar(&f.signKey, "sign-key", "", "Sign the artifact manifest with this ed25519 private key (see 'skillvet keygen')")
}

// writeArtifacts writes every artifact into dir and lists them on p.
func writeArtifacts(ctx context.Context, f outputFlags, dir string, b artifacts.Bundle, p *ui.Printer) (err error) {
	_, span := otelobs.StartSpan(ctx, "skillvet.artifacts.write", attribute.String("skillvet.output_dir", dir))
	defer func() { otelobs.EndSpan(span, err) }()

	b.ToolVersion = version.BuildVersion()
	manifest, err := artifacts.Write(dir, b)
	if err != nil {
		return err
	}

	paths := []string{
		filepath.Join(dir, artifacts.SummaryFile),
		filepath.Join(dir, artifacts.ReportFile),
		filepath.Join(dir, artifacts.SARIFFile),
		filepath.Join(dir, artifacts.SuppressedFile),
		filepath.Join(dir, artifacts.AllowlistSummaryFile),
		filepath.Join(dir, artifacts.ManifestFile),
	}
	if f.signKey != "" {
		if err := artifacts.Sign(dir, manifest, f.signKey); err != nil {
			return err
		}
		paths = append(paths, filepath.Join(dir, artifacts.SignatureFile))
	}
	if f.bundle != "" {
		if err := artifacts.Archive(dir, manifest, f.bundle); err != nil {
			return err
		}
		paths = append(paths, f.bundle)
	}
	p.PrintArtifacts(paths)
	logging.From(ctx).Event(ctx, "artifacts.write", map[string]any{
		"dir":    dir,
		"files":  len(manifest.Files),
		"signed": f.signKey != "",
	})
	return nil
}

// decide evaluates the gate and prints its line.
func decide(ctx context.Context, profile gate.Profile, report *models.Report, p *ui.Printer) gate.Decision {
	_, span := otelobs.StartSpan(ctx, "skillvet.gate", attribute.String("skillvet.gate.profile", string(profile)))
	d := gate.DecideReport(profile, report)
	span.SetAttributes(
		attribute.Int("skillvet.gate.exit_code", d.ExitCode),
		attribute.Bool("skillvet.gate.blocked", d.Blocked))
	otelobs.EndSpan(span, nil)

	p.PrintGate(d.Reason, d.Blocked)
	logging.From(ctx).Event(ctx, "gate.decision", map[string]any{
		"profile":   string(d.Profile),
		"exit_code": d.ExitCode,
		"reason":    d.Reason,
	})
	return d
}

func writeMetrics(path string, snap metrics.Snapshot) error {
	if path == "" {
		return nil
	}
	rec, err := metrics.NewRecorder()
	if err != nil {
		return err
	}
	rec.Observe(snap)
	return rec.WriteTextfile(path)
}

// profileFlags resolve the gate profile, including the legacy switch.
type profileFlags struct {
	profile        string
	failOnFindings bool
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.profile, "gate-profile", string(gate.DefaultProfile), "Gate profile: advisory, block-critical or block-high")
	cmd.Flags().BoolVar(&f.failOnFindings, "fail-on-findings", false, "Legacy: same as --gate-profile block-high")
	_ = cmd.Flags().MarkDeprecated("fail-on-findings", "use --gate-profile block-high")
}

func (f *profileFlags) resolve(cmd *cobra.Command, p *ui.Printer) (gate.Profile, error) {
	requested, err := gate.ParseProfile(f.profile)
	if err != nil {
		return "", exitWith(exitcode.Failure, err)
	}
	profile, notice := gate.ResolveProfile(requested, cmd.Flags().Changed("gate-profile"), f.failOnFindings)
	if notice != "" {
		p.Println(notice)
	}
	return profile, nil
}
