package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/leppikallio/pai-opencode/internal/allowlist"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/leppikallio/pai-opencode/internal/policy"
	"github.com/spf13/cobra"
)

type allowlistOptions struct {
	root *rootOptions
	file string
	now  func() time.Time
}

func newAllowlistCmd(root *rootOptions) *cobra.Command {
	o := &allowlistOptions{root: root, now: time.Now}

	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Maintain the allowlist policy file",
		Long: `Fix before mute: only add context-justified suppressions, always with an
owner, a reason and an expiry date.`,
	}
	cmd.PersistentFlags().StringVar(&o.file, "file", allowlist.DefaultLocations()[0], "Allowlist file (.json, .yaml or .yml)")

	cmd.AddCommand(o.listCmd())
	cmd.AddCommand(o.upsertCmd())
	cmd.AddCommand(o.disableCmd())
	cmd.AddCommand(o.pruneCmd())
	cmd.AddCommand(o.lintCmd())
	return cmd
}

// edit opens the file, applies fn and saves the result, recording a receipt.
func (o *allowlistOptions) edit(cmd *cobra.Command, name string, fn func(doc *models.AllowlistDocument) error) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "skillvet allowlist "+name, os.Args[1:])
	defer func() {
		_ = sess.Finish(err, receipt.WithExitCode(exitCodeOf(err)))
	}()

	doc, err := allowlist.OpenDocument(o.file)
	if err != nil {
		return exitWith(exitcode.Failure, err)
	}
	if err := fn(doc); err != nil {
		return exitWith(exitcode.Failure, err)
	}
	if err := allowlist.SaveDocument(o.file, doc); err != nil {
		return exitWith(exitcode.Failure, err)
	}
	logging.From(ctx).Event(ctx, "allowlist."+name, map[string]any{"file": o.file, "rules": len(doc.Rules)})
	return nil
}

func (o *allowlistOptions) listCmd() *cobra.Command {
	var (
		skill  string
		all    bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List allowlist rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return exitWith(exitcode.Failure, fmt.Errorf("invalid format: %s (use text or json)", format))
			}
			doc, err := allowlist.ReadDocument(o.file)
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			rows := allowlist.List(doc, allowlist.ListFilter{Skill: skill, IncludeDisabled: all}, o.now())

			out := cmd.OutOrStdout()
			if format == "json" {
				type row struct {
					models.AllowlistRule
					Status string `json:"status"`
				}
				items := make([]row, 0, len(rows))
				for _, r := range rows {
					items = append(items, row{AllowlistRule: r.Rule, Status: r.Status()})
				}
				data, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return exitWith(exitcode.Failure, err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			for _, r := range rows {
				fmt.Fprintf(out, "- %s [%s]\n", r.Rule.ID, r.Status())
				fmt.Fprintf(out, "  skill=%s rule_id=%s analyzer=%s\n", r.Rule.Skill, r.Rule.RuleID, r.Rule.Analyzer)
				if r.Rule.FilePath != "" {
					fmt.Fprintf(out, "  file_path=%s\n", r.Rule.FilePath)
				}
				fmt.Fprintf(out, "  owner=%s expires_at=%s\n", r.Rule.Owner, r.Rule.ExpiresAt)
				fmt.Fprintf(out, "  reason=%s\n", r.Rule.Reason)
			}
			fmt.Fprintf(out, "\nListed %d rule(s) from %s\n", len(rows), o.file)
			return nil
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "Filter by skill name")
	cmd.Flags().BoolVar(&all, "include-disabled", false, "Include disabled rules")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func (o *allowlistOptions) upsertCmd() *cobra.Command {
	var (
		rule     models.AllowlistRule
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add or update a rule by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rule.CreatedAt != "" {
				if _, err := allowlist.ParseDay(rule.CreatedAt); err != nil {
					return exitWith(exitcode.Failure, fmt.Errorf("created_at: %w", err))
				}
			}
			rule.Enabled = models.BoolPtr(!disabled)
			var action string
			err := o.edit(cmd, "upsert", func(doc *models.AllowlistDocument) error {
				var err error
				action, err = allowlist.Upsert(doc, rule, o.now())
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\npolicy: %s\n", action, rule.ID, o.file)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&rule.ID, "id", "", "Unique rule id")
	f.StringVar(&rule.Skill, "skill", "", "Skill name")
	f.StringVar(&rule.RuleID, "rule-id", "", "Analyzer rule id")
	f.StringVar(&rule.Reason, "reason", "", "Suppression rationale")
	f.StringVar(&rule.Owner, "owner", "", "Owner of this suppression")
	f.StringVar(&rule.ExpiresAt, "expires-at", "", "Expiry date YYYY-MM-DD")
	f.StringVar(&rule.CreatedAt, "created-at", "", "Created date YYYY-MM-DD (defaults to today)")
	f.StringVar(&rule.Analyzer, "analyzer", "", "Optional analyzer filter")
	f.StringVar(&rule.FilePath, "file-path", "", "Optional file path filter (suffix match)")
	f.StringVar(&rule.TitleContains, "title-contains", "", "Optional title substring filter")
	f.StringVar(&rule.Severity, "severity", "", "Optional severity filter")
	f.BoolVar(&disabled, "disabled", false, "Create the rule disabled")
	for _, name := range []string{"id", "skill", "rule-id", "reason", "owner", "expires-at"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (o *allowlistOptions) disableCmd() *cobra.Command {
	var id, reason, expiresAt string
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable an existing rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(o.file); errors.Is(err, os.ErrNotExist) {
				return exitWith(exitcode.Failure, fmt.Errorf("allowlist file not found: %s", o.file))
			}
			err := o.edit(cmd, "disable", func(doc *models.AllowlistDocument) error {
				return allowlist.Disable(doc, id, reason, expiresAt)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "disabled: %s\npolicy: %s\n", id, o.file)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Rule id")
	cmd.Flags().StringVar(&reason, "reason", "", "Optional replacement reason")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "Optional expiry date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (o *allowlistOptions) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-expired",
		Short: "Remove expired rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var removed int
			err := o.edit(cmd, "prune", func(doc *models.AllowlistDocument) error {
				removed = allowlist.PruneExpired(doc, o.now())
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned expired rules: %d\npolicy: %s\n", removed, o.file)
			return nil
		},
	}
}

func (o *allowlistOptions) lintCmd() *cobra.Command {
	var (
		preset string
		format string
	)
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check allowlist hygiene with a CEL policy",
		Long: `Evaluates every enabled rule against a policy preset (baseline, strict) or a
policy YAML file. Exits 1 when the policy fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			sess := receipt.Start(ctx, "skillvet allowlist lint", os.Args[1:])
			var rep *policy.Report
			defer func() {
				opts := []receipt.Option{receipt.WithExitCode(exitCodeOf(err))}
				if rep != nil {
					opts = append(opts, receipt.WithLint(preset, lintStatus(rep), lintViolations(rep)))
				}
				_ = sess.Finish(err, opts...)
			}()

			if format != "text" && format != "json" {
				return exitWith(exitcode.Failure, fmt.Errorf("invalid format: %s (use text or json)", format))
			}
			cfg, err := policy.Resolve(preset)
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			set, err := allowlist.Load([]string{o.file}, allowlist.LoadOptions{Now: o.now})
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			rules := append(append([]models.AllowlistRule{}, set.Active...), set.Expired...)
			rep, err = lintRules(ctx, cfg, rules, o.now())
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}

			if format == "json" {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return exitWith(exitcode.Failure, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				printLint(o.root.printer(cmd.OutOrStdout()), rep)
			}
			if rep.Failed() {
				return exitWith(exitcode.Failure, nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "baseline", "Policy preset (baseline, strict) or path to a policy YAML file")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}
