package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the last make report",
		Long: `Show the report written by the last make: one line per node with its
status, kind and content digest.`,
		Example: `  # Table view
  yamake report

  # Failed nodes only
  yamake report --json | jq '.nodes[] | select(.status == "BuildFailed")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			_, sandbox := p.Dirs()
			path := filepath.Join(sandbox, engine.DefaultReportName)

			report, err := engine.LoadReport(path)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no report at %s: run yamake make first", path)
			}
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTAG\tSTATUS\tDIGEST")
			for _, e := range report.Nodes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, e.Tag, e.Status, shortDigest(e.Digest))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d node(s): %s\n", len(report.Nodes), report.Counts())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output in JSON format")

	return cmd
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
