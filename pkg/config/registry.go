package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/openfroyo/yamake/pkg/rules/c"
	"github.com/openfroyo/yamake/pkg/rules/file"
)

// Factory builds a node from its declaration.
type Factory func(spec NodeSpec) (engine.Node, error)

// Registry maps node kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry holding the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(c.TagCFile, func(s NodeSpec) (engine.Node, error) { return c.NewCFile(s.Path), nil })
	r.Register(c.TagHFile, func(s NodeSpec) (engine.Node, error) { return c.NewHFile(s.Path), nil })
	r.Register(c.TagOFile, func(s NodeSpec) (engine.Node, error) {
		o := c.NewOFile(s.Path, s.IncludePaths, s.Flags)
		o.Compiler = s.Tool
		return o, nil
	})
	r.Register(c.TagAFile, func(s NodeSpec) (engine.Node, error) {
		a := c.NewAFile(s.Path)
		a.Archiver = s.Tool
		return a, nil
	})
	r.Register(c.TagXFile, func(s NodeSpec) (engine.Node, error) {
		x := c.NewXFile(s.Path)
		x.Libs = s.Libs
		x.Compiler = s.Tool
		return x, nil
	})
	r.Register(file.TagSource, func(s NodeSpec) (engine.Node, error) { return file.NewSource(s.Path), nil })
	r.Register(file.TagCopy, func(s NodeSpec) (engine.Node, error) { return file.NewCopy(s.Path), nil })
	r.Register(file.TagConcat, func(s NodeSpec) (engine.Node, error) {
		cat := file.NewConcat(s.Path)
		cat.Only = s.Only
		return cat, nil
	})
	r.Register(file.TagManifest, func(s NodeSpec) (engine.Node, error) {
		m := file.NewManifest(s.Path, s.Output)
		m.GenDir = s.GenDir
		return m, nil
	})
}

// Register adds or replaces the factory for a kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds the node declared by spec.
func (r *Registry) New(spec NodeSpec) (engine.Node, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", spec.Kind)
	}
	return f(spec)
}

// DefaultRegistry holds the built-in kinds.
var DefaultRegistry = NewRegistry()

// Dirs returns SrcDir and Sandbox, resolved against the project file's
// directory when relative.
func (p *Project) Dirs() (srcDir, sandbox string) {
	base := "."
	if p.File != "" {
		base = filepath.Dir(p.File)
	}
	resolve := func(dir string) string {
		if filepath.IsAbs(dir) {
			return filepath.Clean(dir)
		}
		return filepath.Join(base, dir)
	}
	return resolve(p.SrcDir), resolve(p.Sandbox)
}

// Options translates the project's engine settings.
func (p *Project) Options() []engine.Option {
	var opts []engine.Option
	if p.Workers > 0 {
		opts = append(opts, engine.WithWorkers(p.Workers))
	}
	if p.RootPolicy != "" {
		opts = append(opts, engine.WithRootPolicy(engine.RootPolicy(p.RootPolicy)))
	}
	if p.MaxIterations > 0 {
		opts = append(opts, engine.WithMaxIterations(p.MaxIterations))
	}
	return opts
}

// Build validates the project and creates its graph with the default
// registry. opts are applied after the project's own settings.
func (p *Project) Build(opts ...engine.Option) (*engine.Graph, error) {
	return p.BuildWith(DefaultRegistry, opts...)
}

// BuildWith is Build with a custom registry.
func (p *Project) BuildWith(reg *Registry, opts ...engine.Option) (*engine.Graph, error) {
	if err := p.ValidateWith(reg); err != nil {
		return nil, err
	}

	srcDir, sandbox := p.Dirs()
	g := engine.NewGraph(srcDir, sandbox, append(p.Options(), opts...)...)

	for _, spec := range p.Nodes {
		n, err := reg.New(spec)
		if err != nil {
			return nil, err
		}
		if spec.Root {
			_, err = g.AddRootNode(n)
		} else {
			_, err = g.AddNode(n)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, e := range p.Edges {
		if err := g.AddEdgeByPath(e.From, e.To); err != nil {
			return nil, err
		}
	}
	return g, nil
}
