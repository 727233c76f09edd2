package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/distguard/distguard/internal/observability"
	"github.com/distguard/distguard/internal/observability/logging"
	otelobs "github.com/distguard/distguard/internal/observability/otel"
	"github.com/distguard/distguard/internal/observability/receipt"
	"github.com/distguard/distguard/internal/version"
	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitOK       = 0
	ExitBlocking = 1
	ExitFailure  = 2
)

// ExitError carries a process exit code. Err may be nil when the output
// already explains the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// ExitCode lets receipts tell blocked runs from failures.
func (e *ExitError) ExitCode() int {
	return e.Code
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}

var (
	logFormatFlag       string
	logLevelFlag        string
	logOutputFlag       string
	otelFlag            bool
	otelEndpointFlag    string
	otelProtocolFlag    string
	otelInsecureFlag    bool
	otelSampleRatioFlag float64
	receiptFlag         string
	receiptModeFlag     string
)

// NewRootCmd builds the command tree. Each call returns independent
// commands; flag values live in package variables.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "distguard",
		Short: "Policy checks for dnsdist configurations",
		Long: `distguard evaluates a dnsdist YAML configuration against three policy packages:
baseline correctness (deny/warn), compliance (violations) and production
hardening (scored findings).`,
		Version:           version.String(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupObservability,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			teardownObservability(cmd.Context())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&logFormatFlag, "log-format", "pretty", "Log format: pretty or jsonl")
	pf.StringVar(&logLevelFlag, "log-level", logging.LevelInfo, "Log level: debug, info, warn or error")
	pf.StringVar(&logOutputFlag, "log-output", "stderr", "Log destination: stderr or a file path")
	pf.BoolVar(&otelFlag, "otel", false, "Enable OpenTelemetry tracing")
	pf.StringVar(&otelEndpointFlag, "otel-endpoint", "", "OTLP endpoint (default: OTEL_EXPORTER_OTLP_ENDPOINT or localhost)")
	pf.StringVar(&otelProtocolFlag, "otel-protocol", "", "OTLP protocol: otlphttp or otlpgrpc (default: OTEL_EXPORTER_OTLP_PROTOCOL or otlphttp)")
	pf.BoolVar(&otelInsecureFlag, "otel-insecure", false, "Disable TLS for the OTLP exporter")
	pf.Float64Var(&otelSampleRatioFlag, "otel-sample-ratio", 1.0, "Trace sampling ratio between 0 and 1")
	pf.StringVar(&receiptFlag, "receipt", "", "Write a JSON receipt of the run to this path")
	pf.StringVar(&receiptModeFlag, "receipt-mode", string(receipt.ModeOverwrite), "Receipt write mode: overwrite or append")

	root.AddCommand(newCheckCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newDiffCmd())

	return root
}

type teardownKey struct{}

// setupObservability puts op id, logger, tracer and receipt writer in the
// command context.
func setupObservability(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithOpID(ctx)

	var closers []io.Closer

	logger, err := logging.NewLogger(logging.Config{
		Format: logFormatFlag,
		Level:  logLevelFlag,
		Output: logOutputFlag,
	})
	if err != nil {
		return failure(fmt.Errorf("logging: %w", err))
	}
	closers = append(closers, logger)
	ctx = logging.WithLogger(ctx, logger)

	if otelFlag {
		cfg := otelobs.DefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = otelEndpointFlag
		cfg.Protocol = otelProtocolFlag
		cfg.Insecure = otelInsecureFlag
		cfg.SampleRatio = otelSampleRatioFlag
		h, err := otelobs.Init(ctx, cfg)
		if err != nil {
			return failure(fmt.Errorf("failed to initialize tracing: %w", err))
		}
		ctx = otelobs.WithHandle(ctx, h)
	}

	if receiptFlag != "" {
		w, err := receipt.NewWriter(receiptFlag, receiptModeFlag)
		if err != nil {
			return failure(err)
		}
		closers = append(closers, w)
		ctx = receipt.WithWriter(ctx, w)
	}

	ctx = context.WithValue(ctx, teardownKey{}, closers)
	cmd.SetContext(ctx)
	return nil
}

func teardownObservability(ctx context.Context) {
	if ctx == nil {
		return
	}
	if h := otelobs.From(ctx); h != nil {
		_ = h.Shutdown(context.WithoutCancel(ctx))
	}
	closers, _ := ctx.Value(teardownKey{}).([]io.Closer)
	for _, c := range closers {
		_ = c.Close()
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return ExitOK
	}

	// PersistentPostRunE is skipped when RunE fails
	if cmd != nil {
		teardownObservability(cmd.Context())
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.Err)
		}
		return exit.Code
	}
	// flag and argument errors from cobra
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitFailure
}
