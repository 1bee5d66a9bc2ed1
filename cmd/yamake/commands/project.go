package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/yamake/pkg/config"
	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/openfroyo/yamake/pkg/stores"
)

// loadProject loads the project named by --file.
func loadProject(ctx context.Context) (*config.Project, error) {
	p, err := config.Load(ctx, projectFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", projectFile, err)
	}
	return p, nil
}

// buildGraph creates the project's graph with the CLI's logger and metrics
// observer attached.
func buildGraph(p *config.Project, opts ...engine.Option) (*engine.Graph, error) {
	base := []engine.Option{engine.WithLogger(tel.Component("engine"))}
	if tel.Metrics != nil {
		base = append(base, engine.WithObserver(tel.Metrics))
	}
	return p.Build(append(base, opts...)...)
}

// historyPath is the run history database of a project.
func historyPath(p *config.Project) string {
	_, sandbox := p.Dirs()
	return filepath.Join(sandbox, stores.DefaultPath)
}

func openHistory(ctx context.Context, p *config.Project) (*stores.SQLiteStore, error) {
	store, err := stores.Open(ctx, historyPath(p))
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

// recordRun stores the last make of g in the project's history.
func recordRun(ctx context.Context, p *config.Project, g *engine.Graph) error {
	run, results := stores.FromGraph(p.Name, g)
	if run == nil {
		return nil
	}
	store, err := openHistory(ctx, p)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordRun(ctx, run, results)
}
