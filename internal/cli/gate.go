package cli

import (
	"os"
	"time"

	"github.com/leppikallio/pai-opencode/internal/artifacts"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/metrics"
	"github.com/leppikallio/pai-opencode/internal/observability"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	otelobs "github.com/leppikallio/pai-opencode/internal/observability/otel"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/leppikallio/pai-opencode/internal/scanner"
	"github.com/leppikallio/pai-opencode/internal/ui"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

type gateOptions struct {
	root    *rootOptions
	report  string
	allow   allowlistFlags
	output  outputFlags
	profile profileFlags
	now     func() time.Time
}

func newGateCmd(root *rootOptions) *cobra.Command {
	o := &gateOptions{root: root, now: time.Now}

	cmd := &cobra.Command{
		Use:   "gate --report report.json",
		Short: "Re-apply the allowlist and gate to a saved report",
		Long: `Loads a report.json written by an earlier scan, filters it with the current
allowlist and evaluates the gate profile. Exit codes match scan.

Examples:
  skillvet gate --report reports/20260310-120000-directory/report.json --gate-profile block-critical
  skillvet gate --report report.json --output-dir regated/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.report, "report", "", "Path to a saved report.json")
	_ = cmd.MarkFlagRequired("report")
	o.allow.register(cmd)
	o.output.register(cmd, "Rewrite artifacts for the filtered report into this directory")
	o.profile.register(cmd)
	return cmd
}

func (o *gateOptions) run(cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)
	start := o.now()
	stdout := o.root.printer(cmd.OutOrStdout())
	stderr := o.root.printer(cmd.ErrOrStderr())

	sess := receipt.Start(ctx, "skillvet gate", os.Args[1:])
	var receiptOpts []receipt.Option
	defer func() {
		receiptOpts = append(receiptOpts, receipt.WithExitCode(exitCodeOf(err)))
		_ = sess.Finish(err, receiptOpts...)
	}()

	ctx, span := otelobs.StartSpan(ctx, "skillvet.gate.report",
		attribute.String("skillvet.op_id", observability.OpID(ctx)),
		attribute.String("skillvet.report", o.report))
	defer func() { otelobs.EndSpan(span, err) }()

	log.Event(ctx, "gate.start", map[string]any{"report": o.report})

	profile, err := o.profile.resolve(cmd, stderr)
	if err != nil {
		return err
	}
	set, err := o.allow.load(ctx, profile, stderr, o.now)
	if err != nil {
		return err
	}
	lintReport, err := o.allow.lint(ctx, set, stderr, o.now())
	if lintReport != nil {
		receiptOpts = append(receiptOpts, receipt.WithLint(o.allow.lintPreset, lintStatus(lintReport), lintViolations(lintReport)))
	}
	if err != nil {
		return err
	}

	report, err := scanner.LoadReport(o.report)
	if err != nil {
		return exitWith(exitcode.Failure, err)
	}

	res := applyAllowlist(ctx, report, set)
	receiptOpts = append(receiptOpts, receipt.WithAllowlist(set.Sources, len(set.Active), len(set.Expired), len(res.Suppressed)))
	stdout.PrintSummary(res.Report, res.Summary)

	if o.output.dir != "" {
		if err := writeArtifacts(ctx, o.output, o.output.dir, artifacts.Bundle{
			Report:     res.Report,
			Summary:    ui.SummaryText(res.Report, "report", res.Summary),
			Suppressed: res.Suppressed,
			Allowlist:  res.Summary,
		}, stdout); err != nil {
			return exitWith(exitcode.Failure, err)
		}
	}

	decision := decide(ctx, profile, res.Report, stdout)
	receiptOpts = append(receiptOpts,
		receipt.WithGate(string(decision.Profile), decision.ExitCode, decision.Reason),
		receipt.WithScan(receipt.ScanSummary{
			Mode:          "report",
			Status:        "completed",
			Planned:       res.Report.Len(),
			Scanned:       res.Report.Len(),
			TotalFindings: res.Report.Summary.TotalFindings,
			Critical:      res.Report.Summary.CriticalCount(),
			High:          res.Report.Summary.HighCount(),
			OutputDir:     o.output.dir,
		}))

	if err := writeMetrics(o.output.metricsFile, metrics.Snapshot{
		Report:       res.Report,
		Suppressed:   len(res.Suppressed),
		ExpiredRules: len(set.Expired),
		ExitCode:     decision.ExitCode,
		Duration:     o.now().Sub(start),
	}); err != nil {
		stderr.Warn(err.Error())
	}

	if decision.ExitCode != exitcode.OK {
		return exitWith(decision.ExitCode, nil)
	}
	return nil
}
