package cli

import (
	"fmt"
	"os"

	"github.com/leppikallio/pai-opencode/internal/differ"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/leppikallio/pai-opencode/internal/scanner"
	"github.com/spf13/cobra"
)

func newDiffCmd(root *rootOptions) *cobra.Command {
	var (
		failOnFlag string
		formatFlag string
	)

	cmd := &cobra.Command{
		Use:   "diff <old-report.json> <new-report.json>",
		Short: "Compare two scan reports finding by finding",
		Long: `Diff lists findings that were added, removed or changed between two
report.json files and explains each change in plain words.

Exit codes: 0 when no change reaches --fail-on, 1 otherwise.

Examples:
  skillvet diff main/report.json pr/report.json
  skillvet diff old.json new.json --fail-on=moderate --format=json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			sess := receipt.Start(ctx, "skillvet diff", os.Args[1:])
			var result *differ.Result
			defer func() {
				opts := []receipt.Option{receipt.WithExitCode(exitCodeOf(err))}
				if result != nil {
					opts = append(opts, receipt.WithDiff(
						result.Count(differ.DiffTypeAdded),
						result.Count(differ.DiffTypeRemoved),
						result.Count(differ.DiffTypeChanged)))
				}
				_ = sess.Finish(err, opts...)
			}()

			failOn, err := ParseFailOnLevel(failOnFlag)
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			if formatFlag != "text" && formatFlag != "json" {
				return exitWith(exitcode.Failure, fmt.Errorf("invalid format: %s (use text or json)", formatFlag))
			}

			oldReport, err := scanner.LoadReport(args[0])
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			newReport, err := scanner.LoadReport(args[1])
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}

			result, err = differ.Compare(oldReport, newReport)
			if err != nil {
				return exitWith(exitcode.Failure, fmt.Errorf("diff failed: %w", err))
			}
			out := BuildDiffOutput(args[0], args[1], result, failOn)
			logging.From(ctx).Event(ctx, "diff.complete", map[string]any{
				"added":   out.Summary.Added,
				"removed": out.Summary.Removed,
				"changed": out.Summary.Changed,
				"outcome": out.Outcome,
			})

			if formatFlag == "json" {
				data, err := FormatJSONOutput(out)
				if err != nil {
					return exitWith(exitcode.Failure, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), FormatTextOutput(out, root.printer(cmd.OutOrStdout())))
			}

			if out.Outcome != "PASS" {
				return exitWith(exitcode.Failure, nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&failOnFlag, "fail-on", "critical", "Change level that fails the diff: none, critical, moderate, or info")
	cmd.Flags().StringVar(&formatFlag, "format", "text", "Output format: text or json")
	return cmd
}
