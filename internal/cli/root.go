// Package cli holds the skillvet cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/observability"
	"github.com/leppikallio/pai-opencode/internal/observability/logging"
	otelobs "github.com/leppikallio/pai-opencode/internal/observability/otel"
	"github.com/leppikallio/pai-opencode/internal/observability/receipt"
	"github.com/leppikallio/pai-opencode/internal/ui"
	"github.com/leppikallio/pai-opencode/internal/version"
	"github.com/spf13/cobra"
)

// signalGrace is how long a second Ctrl-C is treated as "exit now".
const signalGrace = 10 * time.Second

// ExitError carries a process exit code. Err may be nil when the code
// alone is the outcome, as with a tripped gate.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return exitcode.Describe(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// rootOptions are the persistent flags and the resources built from them.
type rootOptions struct {
	log     logging.Config
	otel    otelobs.Config
	receipt string
	mode    string
	noColor bool

	closers []func(context.Context) error
}

func (o *rootOptions) printer(w io.Writer) *ui.Printer {
	return ui.NewPrinter(w, ui.ColorEnabled(w, o.noColor))
}

// setup installs op id, logger, tracer and receipt writer in the command
// context.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithOpID(ctx)

	logger, err := logging.NewLogger(o.log)
	if err != nil {
		return fmt.Errorf("invalid logging flags: %w", err)
	}
	ctx = logging.WithLogger(ctx, logger)
	o.closers = append(o.closers, func(context.Context) error { return logger.Close() })

	if o.otel.Enabled {
		h, err := otelobs.Init(ctx, o.otel)
		if err != nil {
			return err
		}
		ctx = otelobs.WithHandle(ctx, h)
		o.closers = append(o.closers, h.Shutdown)
	}

	if o.receipt != "" {
		mode, err := receipt.ParseMode(o.mode)
		if err != nil {
			return err
		}
		w, err := receipt.NewWriter(o.receipt, mode)
		if err != nil {
			return fmt.Errorf("failed to open receipt file: %w", err)
		}
		ctx = receipt.WithWriter(ctx, w)
		o.closers = append(o.closers, func(context.Context) error { return w.Close() })
	}

	cmd.SetContext(ctx)
	return nil
}

// close releases resources in reverse order of creation.
func (o *rootOptions) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(o.closers) - 1; i >= 0; i-- {
		_ = o.closers[i](ctx)
	}
	o.closers = nil
}

// NewRootCmd builds the command tree. Every call returns independent
// flag state.
func NewRootCmd() (*cobra.Command, func()) {
	opts := &rootOptions{
		log:  logging.DefaultConfig(),
		otel: otelobs.DefaultConfig(),
	}

	root := &cobra.Command{
		Use:   "skillvet",
		Short: "Security vetting for agent skills",
		Long: `skillvet scans agent skill directories with an external analyzer,
applies an audited allowlist of suppressions, writes report artifacts
and gates CI on the remaining findings.`,
		Version:       version.BuildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.log.Format, "log-format", opts.log.Format, "Structured log format: pretty or jsonl")
	pf.StringVar(&opts.log.Level, "log-level", opts.log.Level, "Minimum log level: debug, info, warn, error")
	pf.StringVar(&opts.log.Output, "log-output", opts.log.Output, "Log destination: stderr, stdout or a file path")
	pf.BoolVar(&opts.otel.Enabled, "otel", false, "Export OpenTelemetry traces")
	pf.StringVar(&opts.otel.Endpoint, "otel-endpoint", "", "OTLP endpoint (default from OTEL_EXPORTER_OTLP_ENDPOINT)")
	pf.StringVar(&opts.otel.Protocol, "otel-protocol", opts.otel.Protocol, "OTLP protocol: otlphttp or otlpgrpc")
	pf.BoolVar(&opts.otel.Insecure, "otel-insecure", false, "Use plaintext OTLP transport")
	pf.Float64Var(&opts.otel.SampleRatio, "otel-sample-ratio", opts.otel.SampleRatio, "Trace sampling ratio between 0 and 1")
	pf.StringVar(&opts.receipt, "receipt", "", "Write a JSON receipt of the run to this file")
	pf.StringVar(&opts.mode, "receipt-mode", string(receipt.ModeOverwrite), "Receipt file mode: overwrite or append")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newGateCmd(opts))
	root.AddCommand(newAllowlistCmd(opts))
	root.AddCommand(newDiffCmd(opts))
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newVerifyCmd(opts))

	return root, opts.close
}

// Execute runs skillvet with os.Args and returns the process exit code.
func Execute() int {
	ctx, cancel := SignalContext(signalGrace)
	defer cancel()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, cleanup := NewRootCmd()
	defer cleanup()

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(stderr, root.ExecuteContext(ctx))
}

// exitCode prints err, if any, and maps it to a process exit code.
func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return exitcode.OK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitcode.Failure
}
