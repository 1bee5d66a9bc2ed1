package commands

import (
	"errors"
	"fmt"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project file",
		Long: `Validate the project file without building anything.

This command checks:
  - Syntax of the YAML, CUE or Starlark source
  - Schema conformance of every node and edge
  - Known node kinds, clean target paths and unique targets
  - Edge endpoints and the absence of explicit edges into roots`,
		Example: `  # Validate yamake.yml in the current directory
  yamake validate

  # Validate a CUE project
  yamake validate -f project.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(cmd.Context(), projectFile)
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
					}
					return fmt.Errorf("%s: %d problem(s) found", projectFile, len(verrs))
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: project %q is valid (%d node(s), %d edge(s))\n",
				projectFile, p.Name, len(p.Nodes), len(p.Edges))
			return nil
		},
	}

	return cmd
}
