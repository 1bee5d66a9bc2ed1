package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/openfroyo/yamake/pkg/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		opts        makeOptions
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever sources change",
		Long: `Make the project, then make it again each time a file in the source
tree or the project file changes. Changes inside the sandbox are ignored.

The Prometheus metrics of all makes are served on --metrics-addr.`,
		Example: `  # Rebuild on change, metrics on :9090/metrics
  yamake watch

  # Without the metrics endpoint
  yamake watch --metrics-addr ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			p, err := loadProject(ctx)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				errc, err := tel.Metrics.StartServer(ctx, metricsAddr)
				if err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				go func() {
					if err, ok := <-errc; ok && err != nil {
						log.Error().Err(err).Msg("Metrics server stopped")
					}
				}()
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			if _, err := runMake(ctx, out, p, opts); err != nil {
				return err
			}

			srcDir, sandbox := p.Dirs()
			w := &watch.Watcher{
				Paths:    []string{srcDir, p.File},
				Ignore:   []string{sandbox},
				OnChange: rebuild(out, opts),
				Logger:   tel.Component("watch"),
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "j", 0, "concurrent build workers (default: project setting or CPU count)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record runs in the history database")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address of the Prometheus metrics endpoint (empty to disable)")

	return cmd
}

// rebuild reloads the project file before each make so edits to it take
// effect without restarting.
func rebuild(out io.Writer, opts makeOptions) func(context.Context, []string) {
	return func(ctx context.Context, changed []string) {
		log.Info().Strs("changed", changed).Msg("Rebuilding")
		p, err := config.Load(ctx, projectFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload project, keeping previous outputs")
			return
		}
		if _, err := runMake(ctx, out, p, opts); err != nil {
			log.Error().Err(err).Msg("Make failed")
		}
	}
}
