// batchflow discovers batch processing in activity-instance event logs:
// which activity instances were processed together, how, how often, and
// under which conditions the batches fired.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/batchflow/pkg/config"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	logFormat  string
	noCache    bool
)

var (
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg    = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "batchflow",
	Short: "Discover batch processing in event logs",
	Long: `batchflow analyses activity-instance logs (CSV, XLSX, Parquet) and reports
the batch processing they contain: batch instances and their types, batch
frequency, size and duration distributions, and the firing rules that
describe when batches were processed.

Configuration is read from /etc/batchflow/config.yaml, ~/.batchflow/config.yaml,
./.batchflow.yaml, ./.batchflow.toml, the --config file, BATCHFLOW_*
environment variables and flags, in increasing priority.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Configuration file (YAML or TOML)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.BoolVar(&noCache, "no-cache", false, "Disable the report cache")
	registerFlags(pf)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// setup builds the logger and the effective configuration before any
// command runs.
func setup(cmd *cobra.Command, args []string) error {
	l, err := newLogger(os.Stderr, logFormat, verbose)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(logger)

	mgr := config.NewManager()
	if err := mgr.Load(configFile); err != nil {
		return err
	}
	c := mgr.Get()
	if err := applyFlags(cmd.Flags(), c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	logger.Debug("configuration loaded", "files", mgr.GetPaths())
	return nil
}

func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, bferrors.InvalidParameter("log-format", format, "text or json")
	}
}

// exitCode maps error classes to process exit codes: 2 for invalid
// parameters, 3 for schema errors, 130 for interruption and 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled) || bferrors.IsCode(err, bferrors.CodeContextCanceled):
		return 130
	case bferrors.IsCode(err, bferrors.CodeInvalidParameters):
		return 2
	case bferrors.IsSchemaError(err):
		return 3
	default:
		return 1
	}
}
