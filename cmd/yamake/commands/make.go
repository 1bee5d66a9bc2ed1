package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type makeOptions struct {
	workers     int
	force       bool
	noHistory   bool
	metricsFile string
}

func newMakeCommand() *cobra.Command {
	var opts makeOptions

	cmd := &cobra.Command{
		Use:   "make",
		Short: "Build the project to a fixpoint",
		Long: `Build every node of the project graph, reusing results recorded by the
previous make.

Nodes whose inputs are unchanged are not rebuilt. The outcome is written to
the sandbox report and appended to the run history.`,
		Example: `  # Build the project in the current directory
  yamake make

  # Rebuild everything with 4 workers
  yamake make --force --workers 4

  # Build a Starlark project and export metrics for node_exporter
  yamake make -f build.star --metrics-file /var/lib/node_exporter/yamake.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := runMake(cmd.Context(), cmd.OutOrStdout(), p, opts)
			if err != nil {
				return err
			}
			if !ok {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "j", 0, "concurrent build workers (default: project setting or CPU count)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "discard the previous report and rebuild everything")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record the run in the history database")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the make")

	return cmd
}

// runMake builds p once and prints its summary. It returns the make's
// success; errors are reserved for failures outside the graph.
func runMake(ctx context.Context, w io.Writer, p *config.Project, opts makeOptions) (bool, error) {
	var engineOpts []engine.Option
	if opts.workers > 0 {
		engineOpts = append(engineOpts, engine.WithWorkers(opts.workers))
	}
	g, err := buildGraph(p, engineOpts...)
	if err != nil {
		return false, err
	}

	if opts.force {
		if err := os.Remove(g.ReportPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to remove report: %w", err)
		}
		log.Info().Str("report", g.ReportPath()).Msg("Discarded previous report")
	}

	ok := g.Make(ctx)
	printResult(w, p, g.LastResult())

	if !opts.noHistory {
		if err := recordRun(ctx, p, g); err != nil {
			log.Warn().Err(err).Msg("Failed to record run history")
		}
	}
	if opts.metricsFile != "" {
		if err := tel.Metrics.WriteTextfile(opts.metricsFile); err != nil {
			log.Warn().Err(err).Str("path", opts.metricsFile).Msg("Failed to write metrics file")
		}
	}
	return ok, nil
}

func printResult(w io.Writer, p *config.Project, result *engine.Result) {
	if result == nil {
		return
	}
	state := "succeeded"
	if !result.Success {
		state = "failed"
	}
	fmt.Fprintf(w, "make %s: %s in %d iteration(s), %s\n", state, p.Name, result.Iterations, result.Duration.Round(time.Millisecond))
	for _, s := range engine.AllStatuses {
		if n := result.Counts[s]; n > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", s, n)
		}
	}
	if !result.Converged {
		fmt.Fprintln(w, "  warning: iteration limit reached before the graph converged")
	}
	for _, path := range result.Stalled {
		fmt.Fprintf(w, "  stalled: %s\n", path)
	}
}
