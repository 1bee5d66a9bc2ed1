package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/yamake/pkg/stores"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded make runs",
		Long: `Show make runs recorded in the sandbox history database, newest first.

Every yamake make appends one run unless --no-history is given.`,
		Example: `  # Last 10 runs
  yamake history --limit 10

  # Node results of one run
  yamake history show 1f0c3c1e-8d5b-4c57-9a0e-2f4be1f1f2a7

  # How one target fared across runs
  yamake history node app/main.o`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tRESULT\tITERATIONS\tDURATION\tSUMMARY")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), outcome(r.Success),
					r.Iterations, r.Duration().Round(time.Millisecond), r.Summary)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryNodeCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the node results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if errors.Is(err, stores.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return err
			}
			results, err := store.ListNodeResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Project)
			fmt.Fprintf(out, "  started:    %s\n", run.StartedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "  result:     %s after %d iteration(s)\n", outcome(run.Success), run.Iterations)
			fmt.Fprintf(out, "  duration:   %s\n", run.Duration().Round(time.Millisecond))
			fmt.Fprintf(out, "  sandbox:    %s\n\n", run.Sandbox)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTAG\tSTATUS\tEXPANDED")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", r.Path, r.Tag, r.Status, r.Expanded)
			}
			return tw.Flush()
		},
	}
}

func newHistoryNodeCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "node <path>",
		Short: "Show the status of one target across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.NodeHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No results recorded for %s\n", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tDIGEST")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					e.RunID, e.StartedAt.Local().Format(time.DateTime), e.Status, shortDigest(e.Digest))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.PruneRuns(cmd.Context(), keep)
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", deleted).Int("kept", keep).Msg("Pruned run history")
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "number of runs to keep")

	return cmd
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
