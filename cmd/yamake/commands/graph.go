package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var (
		format string
		doMake bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the project graph",
		Long: `Print the project graph as a Mermaid flowchart or a Graphviz digraph.

Without --make the graph holds only declared nodes and edges, all in the
Initial status. With --make the graph is built first, so expanded nodes,
scanned dependencies and final statuses are included.`,
		Example: `  # Mermaid flowchart of the declared graph
  yamake graph

  # Render the built graph with Graphviz
  yamake graph --make --format dot | dot -Tsvg > graph.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "mermaid" && format != "dot" {
				return fmt.Errorf("unsupported graph format %q (must be mermaid or dot)", format)
			}
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			g, err := buildGraph(p)
			if err != nil {
				return err
			}
			if doMake {
				g.Make(cmd.Context())
			}

			out := g.ToMermaid()
			if format == "dot" {
				out = g.ToDOT()
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "mermaid", "output format (mermaid or dot)")
	cmd.Flags().BoolVar(&doMake, "make", false, "build the graph before printing it")

	return cmd
}
