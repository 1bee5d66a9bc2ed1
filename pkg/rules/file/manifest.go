package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/yamake/pkg/command"
	"github.com/openfroyo/yamake/pkg/engine"
)

// ManifestDoc is the YAML document a Manifest is built from.
type ManifestDoc struct {
	Entries map[string]string `yaml:"entries" json:"entries"`
}

// Manifest converts a YAML entry list into JSON and expands one generated
// file per entry. Each entry becomes <GenDir>/<name>.txt, copied to
// <GenDir>/<name>.out, which feeds Collect.
type Manifest struct {
	engine.BaseNode
	Target  string
	GenDir  string
	Collect string
}

// NewManifest creates a manifest node writing target and feeding collect.
func NewManifest(target, collect string) *Manifest {
	return &Manifest{Target: target, Collect: collect}
}

func (m *Manifest) Tag() string  { return TagManifest }
func (m *Manifest) Path() string { return m.Target }

// Build reads the single YAML predecessor and writes it as JSON.
func (m *Manifest) Build(_ context.Context, sandbox string, preds []engine.Node) bool {
	if len(preds) != 1 {
		command.Record(sandbox, m.Target, "manifest", nil,
			[]byte(fmt.Sprintf("expected exactly one predecessor, got %d\n", len(preds))))
		return false
	}
	description := "manifest " + preds[0].Path()

	data, err := os.ReadFile(filepath.Join(sandbox, preds[0].Path()))
	if err != nil {
		command.Record(sandbox, m.Target, description, nil, []byte(err.Error()+"\n"))
		return false
	}
	var doc ManifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		command.Record(sandbox, m.Target, description, nil, []byte(err.Error()+"\n"))
		return false
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false
	}
	return emit(sandbox, m.Target, description, append(out, '\n'))
}

// Expand writes the generated files and wires them between the manifest and
// Collect.
func (m *Manifest) Expand(ctx context.Context, sandbox string, _ []engine.Node) ([]engine.Node, []engine.Edge) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(filepath.Join(sandbox, m.Target))
	if err != nil {
		return nil, nil
	}
	var doc ManifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn().Err(err).Str("target", m.Target).Msg("Cannot expand unreadable manifest")
		return nil, nil
	}

	names := make([]string, 0, len(doc.Entries))
	for name := range doc.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var nodes []engine.Node
	var edges []engine.Edge
	for _, name := range names {
		gen := path.Join(m.genDir(), name+".txt")
		out := path.Join(m.genDir(), name+".out")
		if err := writeIfChanged(filepath.Join(sandbox, gen), []byte(doc.Entries[name]+"\n")); err != nil {
			logger.Error().Err(err).Str("file", gen).Msg("Failed to write generated file")
			continue
		}
		nodes = append(nodes, NewSource(gen), NewCopy(out))
		edges = append(edges,
			engine.Edge{From: m.Target, To: gen},
			engine.Edge{From: gen, To: out},
		)
		if m.Collect != "" {
			edges = append(edges, engine.Edge{From: out, To: m.Collect})
		}
	}
	return nodes, edges
}

func (m *Manifest) genDir() string {
	if m.GenDir != "" {
		return m.GenDir
	}
	return path.Join(path.Dir(m.Target), "gen")
}

// writeIfChanged leaves identical files untouched.
func writeIfChanged(file string, data []byte) error {
	if current, err := os.ReadFile(file); err == nil && string(current) == string(data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, data, 0o644)
}
