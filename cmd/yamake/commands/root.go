package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/openfroyo/yamake/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	projectFile string
	logLevel    string
	logFormat   string
	tracing     string

	// tel is set up before every command runs.
	tel *telemetry.Telemetry
)

// ExitError carries a process exit code for failures that were already
// reported to the user, such as a failed make.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "yamake",
		Short: "yamake - incremental build engine",
		Long: `yamake builds a dependency graph of file artifacts to a fixpoint.

Each make mounts source files into a sandbox, scans them for implicit
dependencies, expands generator nodes and rebuilds only what changed since
the last recorded report.

Projects are declared in YAML, CUE or Starlark.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupTelemetry(cmd, version)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tel == nil {
				return nil
			}
			return tel.Shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&projectFile, "file", "f", config.DefaultFile, "project file (.yml, .cue or .star)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console or json)")
	rootCmd.PersistentFlags().StringVar(&tracing, "tracing", "", "trace exporter (none, stdout, otlp)")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newMakeCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// setupTelemetry builds the logger, tracer and metrics from defaults, the
// environment and the global flags, in that order.
func setupTelemetry(cmd *cobra.Command, version string) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if tracing != "" {
		cfg.Tracing.Exporter = tracing
	}

	t, err := telemetry.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel = t
	log.Logger = t.Logger
	cmd.SetContext(t.WithContext(cmd.Context()))
	return nil
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout(), version, commit, buildDate)
		},
	}
}

func printVersion(w io.Writer, version, commit, buildDate string) {
	fmt.Fprintf(w, "yamake %s\n", version)
	fmt.Fprintf(w, "  commit: %s\n", commit)
	fmt.Fprintf(w, "  built:  %s\n", buildDate)
}
