package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/artifacts"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/metrics"
	"github.com/leppikallio/pai-opencode/internal/observability"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	otelobs "github.com/leppikallio/pai-opencode/internal/observability/otel"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/leppikallio/pai-opencode/internal/orchestrator"
	"github.com/leppikallio/pai-opencode/internal/scanner"
	"github.com/leppikallio/pai-opencode/internal/ui"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

const defaultAnalyzerTimeout = 10 * time.Minute

type scanOptions struct {
	root *rootOptions

	skillDir  string
	skillsDir string
	listFile  string
	skills    []string

	analyzerCmd     string
	analyzerTimeout time.Duration
	noProgress      bool
	progress        time.Duration

	allow   allowlistFlags
	output  outputFlags
	profile profileFlags

	now func() time.Time
}

func newScanCmd(root *rootOptions) *cobra.Command {
	o := &scanOptions{root: root, now: time.Now}

	cmd := &cobra.Command{
		Use:   "scan (--skill-dir DIR | --skills-dir DIR | --skill-list-file FILE [--skill DIR]...)",
		Short: "Scan one or more skills and gate on the findings",
		Long: `Runs the analyzer once per skill, removes allowlisted findings, writes the
report artifacts and exits with the gate profile's verdict.

Exit codes: 0 pass, 1 failure, 2 expired allowlist (blocking profiles or
--fail-on-expired-allowlist), 3 block-critical, 4 block-high, 130 interrupted.

Examples:
  skillvet scan --skill-dir .opencode/skills/web-fetch
  skillvet scan --skills-dir .opencode/skills --gate-profile block-high
  skillvet scan --skill-list-file changed-skills.txt --output-dir out/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.skillDir, "skill-dir", "", "Scan a single skill directory (must contain SKILL.md)")
	f.StringVar(&o.skillsDir, "skills-dir", "", "Scan every skill below this directory")
	f.StringVar(&o.listFile, "skill-list-file", "", "Scan the skill directories listed in this file, one per line")
	f.StringArrayVar(&o.skills, "skill", nil, "Skill directory to add in list mode (repeatable)")
	f.StringVar(&o.analyzerCmd, "analyzer-cmd", scanner.DefaultCommand, "Analyzer command; the skill path is appended")
	f.DurationVar(&o.analyzerTimeout, "analyzer-timeout", defaultAnalyzerTimeout, "Per-skill analyzer timeout (0 disables)")
	f.BoolVar(&o.noProgress, "no-progress", false, "Disable progress and heartbeat lines")
	f.DurationVar(&o.progress, "progress-interval", orchestrator.DefaultProgressInterval, "Heartbeat interval (minimum 5s)")
	o.allow.register(cmd)
	o.output.register(cmd, "Artifact directory (default ./reports/<timestamp>-<mode>)")
	o.profile.register(cmd)

	return cmd
}

// plan builds the target plan from whichever mode flag was given.
func (o *scanOptions) plan() (*orchestrator.Plan, error) {
	var modes []string
	if o.skillDir != "" {
		modes = append(modes, "--skill-dir")
	}
	if o.skillsDir != "" {
		modes = append(modes, "--skills-dir")
	}
	if o.listFile != "" || len(o.skills) > 0 {
		modes = append(modes, "--skill-list-file/--skill")
	}
	switch len(modes) {
	case 0:
		return nil, errors.New("one of --skill-dir, --skills-dir or --skill-list-file is required")
	case 1:
	default:
		return nil, fmt.Errorf("choose one scan mode, got %s", strings.Join(modes, " and "))
	}

	switch {
	case o.skillDir != "":
		return orchestrator.PlanSingle(o.skillDir)
	case o.skillsDir != "":
		return orchestrator.PlanDirectory(o.skillsDir)
	default:
		return orchestrator.PlanList(o.listFile, o.skills)
	}
}

func (o *scanOptions) targetLabel(plan *orchestrator.Plan) string {
	switch plan.Mode {
	case orchestrator.ModeList:
		return fmt.Sprintf("skill-list (%d entries)", len(plan.Targets))
	case orchestrator.ModeDirectory:
		return o.skillsDir
	default:
		return plan.Targets[0].Path
	}
}

func (o *scanOptions) run(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)
	start := o.now()
	stdout := o.root.printer(cmd.OutOrStdout())
	stderr := o.root.printer(cmd.ErrOrStderr())

	sess := receipt.Start(ctx, "skillvet scan", os.Args[1:])
	var receiptOpts []receipt.Option
	defer func() {
		receiptOpts = append(receiptOpts, receipt.WithExitCode(exitCodeOf(err)))
		_ = sess.Finish(err, receiptOpts...)
	}()

	ctx, span := otelobs.StartSpan(ctx, "skillvet.scan",
		attribute.String("skillvet.op_id", observability.OpID(ctx)),
		attribute.String("skillvet.command", "scan"))
	defer func() { otelobs.EndSpan(span, err) }()

	log.Event(ctx, "scan.start", nil)
	var resultStatus string
	defer func() {
		log.Event(ctx, "scan.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus,
			"exit_code":   exitCodeOf(err),
		})
	}()

	profile, err := o.profile.resolve(cmd, stderr)
	if err != nil {
		resultStatus = "fail"
		return err
	}

	set, err := o.allow.load(ctx, profile, stderr, o.now)
	if set != nil {
		receiptOpts = append(receiptOpts, receipt.WithAllowlist(set.Sources, len(set.Active), len(set.Expired), 0))
	}
	if err != nil {
		resultStatus = "fail"
		return err
	}

	lintReport, err := o.allow.lint(ctx, set, stderr, o.now())
	if lintReport != nil {
		receiptOpts = append(receiptOpts, receipt.WithLint(o.allow.lintPreset, lintStatus(lintReport), lintViolations(lintReport)))
	}
	if err != nil {
		resultStatus = "fail"
		return err
	}

	plan, err := o.plan()
	if err != nil {
		resultStatus = "fail"
		return exitWith(exitcode.Failure, err)
	}
	span.SetAttributes(
		attribute.String("skillvet.scan.mode", string(plan.Mode)),
		attribute.Int("skillvet.scan.targets", len(plan.Targets)))

	var opts []scanner.Option
	if o.analyzerTimeout > 0 {
		opts = append(opts, scanner.WithTimeout(o.analyzerTimeout))
	}
	sc, err := scanner.New(o.analyzerCmd, opts...)
	if err != nil {
		resultStatus = "fail"
		return exitWith(exitcode.Failure, err)
	}

	outDir := o.output.dir
	if outDir == "" {
		outDir = artifacts.DefaultDir(".", start, string(plan.Mode))
	}

	interval := o.progress
	if interval < orchestrator.MinProgressInterval {
		interval = orchestrator.MinProgressInterval
	}
	stdout.PrintBanner(ui.Banner{
		Mode:          string(plan.Mode),
		Analyzer:      o.analyzerCmd,
		Target:        o.targetLabel(plan),
		Output:        outDir,
		GateProfile:   string(profile),
		DisabledRules: scanner.AdvisoryDisabledRules,
		Progress:      !o.noProgress,
		Interval:      int(interval / time.Second),
		Allowlist:     set.Messages,
	})

	outcome, err := orchestrator.Run(ctx, sc, plan, orchestrator.Config{
		ShowProgress:     !o.noProgress,
		ProgressInterval: interval,
		JoinTimeout:      orchestrator.DefaultJoinTimeout,
		Out:              cmd.ErrOrStderr(),
		Warn:             cmd.ErrOrStderr(),
	})
	if err != nil {
		resultStatus = "fail"
		return exitWith(exitcode.Failure, err)
	}

	scanSummary := receipt.ScanSummary{
		Mode:    string(outcome.Mode),
		Status:  string(outcome.Status),
		Planned: outcome.Planned,
		Skipped: len(outcome.Skipped),
	}
	interrupted := outcome.Status == orchestrator.StatusInterrupted

	if outcome.Report == nil {
		receiptOpts = append(receiptOpts, receipt.WithScan(scanSummary))
		fmt.Fprintln(cmd.ErrOrStderr(), "Scan interrupted by user. No report was generated.")
		resultStatus = "interrupted"
		_ = writeMetrics(o.output.metricsFile, metrics.Snapshot{
			ExitCode:    exitcode.Interrupted,
			Duration:    o.now().Sub(start),
			Interrupted: true,
		})
		return exitWith(exitcode.Interrupted, nil)
	}

	res := applyAllowlist(ctx, outcome.Report, set)
	receiptOpts = append(receiptOpts, receipt.WithAllowlist(set.Sources, len(set.Active), len(set.Expired), len(res.Suppressed)))

	summaryText := ui.SummaryText(res.Report, string(plan.Mode), res.Summary)
	stdout.PrintSummary(res.Report, res.Summary)

	if err := writeArtifacts(ctx, o.output, outDir, artifacts.Bundle{
		Report:     res.Report,
		Summary:    summaryText,
		Suppressed: res.Suppressed,
		Allowlist:  res.Summary,
	}, stdout); err != nil {
		resultStatus = "fail"
		return exitWith(exitcode.Failure, err)
	}

	decision := decide(ctx, profile, res.Report, stdout)
	receiptOpts = append(receiptOpts, receipt.WithGate(string(decision.Profile), decision.ExitCode, decision.Reason))

	scanSummary.Scanned = res.Report.Len()
	scanSummary.TotalFindings = res.Report.Summary.TotalFindings
	scanSummary.Critical = res.Report.Summary.CriticalCount()
	scanSummary.High = res.Report.Summary.HighCount()
	scanSummary.OutputDir = outDir
	receiptOpts = append(receiptOpts, receipt.WithScan(scanSummary))

	code := decision.ExitCode
	if interrupted {
		code = exitcode.Interrupted
	}
	if err := writeMetrics(o.output.metricsFile, metrics.Snapshot{
		Report:       res.Report,
		Suppressed:   len(res.Suppressed),
		ExpiredRules: len(set.Expired),
		ExitCode:     code,
		Duration:     o.now().Sub(start),
		Interrupted:  interrupted,
	}); err != nil {
		stderr.Warn(err.Error())
	}

	if interrupted {
		fmt.Fprintln(cmd.ErrOrStderr(), "Scan interrupted by user; partial artifacts were written.")
		resultStatus = "interrupted"
		return exitWith(exitcode.Interrupted, nil)
	}
	if code != exitcode.OK {
		resultStatus = "blocked"
		return exitWith(code, nil)
	}
	resultStatus = "success"
	return nil
}
