package cli

import (
	"fmt"
	"os"

	"github.com/leppikallio/pai-opencode/internal/artifacts"
	"github.com/leppikallio/pai-opencode/internal/crypto"
	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var privPath, pubPath string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 keypair for signing artifacts",
		Long: `Writes a PEM encoded ed25519 keypair. Pass the private key to
--sign-key on scan or gate, and the public key to verify.

Example:
  skillvet keygen --private-key ci-signing.pem --public-key ci-signing.pub`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := crypto.GenerateKeys(privPath, pubPath); err != nil {
				return exitWith(exitcode.Failure, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key: %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&privPath, "private-key", "skillvet.pem", "Private key output path")
	cmd.Flags().StringVar(&pubPath, "public-key", "skillvet.pub", "Public key output path")
	return cmd
}

func newVerifyCmd(root *rootOptions) *cobra.Command {
	var pubPath string
	cmd := &cobra.Command{
		Use:   "verify <output-dir>",
		Short: "Check an artifact directory against its manifest",
		Long: `Re-hashes every artifact listed in manifest.json. With --public-key the
manifest signature is checked too. Exits 1 on any mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			sess := receipt.Start(ctx, "skillvet verify", os.Args[1:])
			defer func() {
				_ = sess.Finish(err, receipt.WithExitCode(exitCodeOf(err)))
			}()

			v, err := artifacts.Verify(args[0], pubPath)
			if err != nil {
				return exitWith(exitcode.Failure, err)
			}
			logging.From(ctx).Event(ctx, "artifacts.verify", map[string]any{
				"dir":      args[0],
				"checked":  v.Checked,
				"signed":   v.Signed,
				"problems": len(v.Problems),
			})

			p := root.printer(cmd.OutOrStdout())
			for _, problem := range v.Problems {
				p.Printf("FAIL %s\n", problem)
			}
			if !v.OK() {
				return exitWith(exitcode.Failure, fmt.Errorf("%d problem(s) in %s", len(v.Problems), args[0]))
			}
			sig := "unsigned"
			if v.Signed {
				sig = "signature ok"
			}
			p.Printf("OK %d file(s) verified, %s (tool %s)\n", v.Checked, sig, v.ToolVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&pubPath, "public-key", "", "ed25519 public key; requires a valid manifest.sig")
	return cmd
}
