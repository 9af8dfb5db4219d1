package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/internal/logging"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err and returns the exit code for it.
func reportError(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintf(w, "Error: %s\n", exitErr.Message)
		return exitErr.Code
	}
	fmt.Fprintf(w, "Error: %s\n", err)
	return exitFailure
}

// app holds the flags and the resolved settings shared by every command.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	format     string

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "sheetcalc",
		Short:         "Evaluate spreadsheet formulas from the command line",
		Long:          "sheetcalc drives an in-memory spreadsheet engine: apply cell edits from a script or interactively and inspect the recalculated values.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text|json (overrides config)")
	root.PersistentFlags().StringVar(&a.format, "format", "text", "output format: json|text")

	root.AddCommand(newRunCmd(a), newReplCmd(a), newLabelCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.format); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: exitUsage, Message: err.Error()}
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	a.registry = prometheus.NewRegistry()
	a.logger.Debug("configuration loaded", "config", a.configPath, "rows", cfg.Grid.Rows, "columns", cfg.Grid.Columns)
	return nil
}

// newEngine builds an engine wired to the configured logger and metrics.
func (a *app) newEngine() *spreadsheet.Engine {
	return spreadsheet.New(
		spreadsheet.WithLogger(a.logger),
		spreadsheet.WithMetrics(spreadsheet.NewMetrics(a.registry, a.cfg.Metrics.Namespace)),
		spreadsheet.WithGridSize(spreadsheet.GridSize{Rows: a.cfg.Grid.Rows, Columns: a.cfg.Grid.Columns}),
	)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return &ExitError{Code: exitUsage, Message: fmt.Sprintf("invalid --format %q: must be json or text", format)}
	}
}
