package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCleanCommand() *cobra.Command {
	var reportOnly bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs",
		Long: `Remove the sandbox, including the make report, per-node logs and run
history. With --report-only only the report is removed, which makes the next
make treat every node as changed.`,
		Example: `  # Start from scratch
  yamake clean

  # Force a full rebuild but keep outputs and history
  yamake clean --report-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context())
			if err != nil {
				return err
			}
			srcDir, sandbox := p.Dirs()

			if reportOnly {
				path := filepath.Join(sandbox, engine.DefaultReportName)
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to remove report: %w", err)
				}
				log.Info().Str("report", path).Msg("Removed report")
				return nil
			}

			if contains(sandbox, srcDir) {
				return fmt.Errorf("refusing to remove sandbox %s: it contains the source tree %s", sandbox, srcDir)
			}
			if err := os.RemoveAll(sandbox); err != nil {
				return fmt.Errorf("failed to remove sandbox: %w", err)
			}
			log.Info().Str("sandbox", sandbox).Msg("Removed sandbox")
			return nil
		},
	}

	cmd.Flags().BoolVar(&reportOnly, "report-only", false, "remove only the make report")

	return cmd
}

// contains reports whether path is dir or lies below it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
