package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type projectTemplate struct {
	project string
	sources map[string]string
}

var templates = map[string]projectTemplate{
	"c": {
		project: `# yamake project
name: %s
src_dir: src
sandbox: build

nodes:
  - {kind: CFile, path: main.c, root: true}
  - {kind: CFile, path: greet.c, root: true}
  - {kind: HFile, path: greet.h, root: true}
  - {kind: OFile, path: main.o}
  - {kind: OFile, path: greet.o}
  - {kind: XFile, path: %s}

edges:
  - {from: main.c, to: main.o}
  - {from: greet.c, to: greet.o}
  - {from: main.o, to: %s}
  - {from: greet.o, to: %s}
`,
		sources: map[string]string{
			"main.c":  "#include \"greet.h\"\n\nint main(void) {\n\tgreet();\n\treturn 0;\n}\n",
			"greet.c": "#include <stdio.h>\n#include \"greet.h\"\n\nvoid greet(void) {\n\tputs(\"hello\");\n}\n",
			"greet.h": "void greet(void);\n",
		},
	},
	"file": {
		project: `# yamake project
name: %s
src_dir: src
sandbox: build

nodes:
  - {kind: Source, path: header.txt, root: true}
  - {kind: Source, path: body.txt, root: true}
  - {kind: Concat, path: %s.txt}

edges:
  - {from: header.txt, to: %s.txt}
  - {from: body.txt, to: %s.txt}
`,
		sources: map[string]string{
			"header.txt": "# generated by yamake\n",
			"body.txt":   "hello\n",
		},
	},
}

func newInitCommand() *cobra.Command {
	var (
		template string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a starter project",
		Long: `Create a yamake.yml, a src directory with example sources and an empty
run history.

The "c" template builds a small program with gcc. The "file" template
concatenates text files and needs no toolchain.`,
		Example: `  # C project in the current directory
  yamake init

  # Toolchain-free project in ./demo
  yamake init --template file demo`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, ok := templates[template]
			if !ok {
				return fmt.Errorf("unknown template %q (must be c or file)", template)
			}
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if name == "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				name = filepath.Base(abs)
			}

			file := filepath.Join(dir, config.DefaultFile)
			if _, err := os.Stat(file); err == nil {
				return fmt.Errorf("%s already exists", file)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			srcDir := filepath.Join(dir, "src")
			if err := os.MkdirAll(srcDir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", srcDir, err)
			}
			out := cmd.OutOrStdout()
			for rel, content := range tmpl.sources {
				path := filepath.Join(srcDir, rel)
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "✓ Kept existing source: %s\n", path)
					continue
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(out, "✓ Created source: %s\n", path)
			}

			content := fmt.Sprintf(tmpl.project, name, name, name, name)
			if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
				return fmt.Errorf("failed to write project file: %w", err)
			}
			fmt.Fprintf(out, "✓ Created project file: %s\n", file)

			p, err := config.Load(cmd.Context(), file)
			if err != nil {
				return fmt.Errorf("generated project is invalid: %w", err)
			}
			store, err := openHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized run history: %s\n", historyPath(p))

			log.Info().Str("project", p.Name).Str("template", template).Msg("Project initialized")
			fmt.Fprintf(out, "\nNext steps:\n  cd %s && yamake make\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "c", "starter template (c or file)")
	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory name)")

	return cmd
}
