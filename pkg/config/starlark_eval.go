package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultStarlarkTimeout bounds the evaluation of a project script.
const DefaultStarlarkTimeout = 30 * time.Second

// StarlarkEvaluator executes Starlark project scripts. A script describes the
// project through three builtins:
//
//	project(name, src_dir, sandbox, workers=0, root_policy="", max_iterations=0)
//	node(kind, path, root=False, flags=[], include_paths=[], libs=[], output="", gen_dir="", only="", tool="")
//	edge(source, target)
//
// node returns its path, so results can be passed to edge. glob(pattern)
// lists source files, relative to src_dir, matching a shell pattern.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate runs the script and returns the project it declares. dir is the
// directory relative paths (src_dir, glob) resolve against.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, script []byte, dir string) (*Project, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	b := &starlarkBuilder{dir: dir}
	thread := &starlark.Thread{
		Name:  "yamake",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(fmt.Sprintf("evaluation aborted: %v", evalCtx.Err()))
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"struct":  starlarkstruct.Default,
		"project": starlark.NewBuiltin("project", b.project),
		"node":    starlark.NewBuiltin("node", b.node),
		"edge":    starlark.NewBuiltin("edge", b.edge),
		"glob":    starlark.NewBuiltin("glob", b.glob),
	}

	if _, err := starlark.ExecFile(thread, filename, script, predeclared); err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, ValidationErrors{{File: filename, Message: evalErr.Backtrace()}}
		}
		return nil, ValidationErrors{{File: filename, Message: err.Error()}}
	}
	if !b.declared {
		return nil, ValidationErrors{{File: filename, Message: "script never calls project()"}}
	}
	return &b.p, nil
}

// starlarkBuilder accumulates the declarations of one script.
type starlarkBuilder struct {
	dir      string
	p        Project
	declared bool
}

func (sb *starlarkBuilder) project(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if sb.declared {
		return nil, fmt.Errorf("%s: called more than once", b.Name())
	}
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &sb.p.Name,
		"src_dir", &sb.p.SrcDir,
		"sandbox", &sb.p.Sandbox,
		"workers?", &sb.p.Workers,
		"root_policy?", &sb.p.RootPolicy,
		"max_iterations?", &sb.p.MaxIterations,
	); err != nil {
		return nil, err
	}
	sb.declared = true
	return starlark.None, nil
}

func (sb *starlarkBuilder) node(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		spec                      NodeSpec
		flags, includePaths, libs *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"kind", &spec.Kind,
		"path", &spec.Path,
		"root?", &spec.Root,
		"flags?", &flags,
		"include_paths?", &includePaths,
		"libs?", &libs,
		"output?", &spec.Output,
		"gen_dir?", &spec.GenDir,
		"only?", &spec.Only,
		"tool?", &spec.Tool,
	); err != nil {
		return nil, err
	}

	var err error
	if spec.Flags, err = stringList(b.Name(), "flags", flags); err != nil {
		return nil, err
	}
	if spec.IncludePaths, err = stringList(b.Name(), "include_paths", includePaths); err != nil {
		return nil, err
	}
	if spec.Libs, err = stringList(b.Name(), "libs", libs); err != nil {
		return nil, err
	}

	sb.p.Nodes = append(sb.p.Nodes, spec)
	return starlark.String(spec.Path), nil
}

func (sb *starlarkBuilder) edge(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var e EdgeSpec
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &e.From, &e.To); err != nil {
		return nil, err
	}
	sb.p.Edges = append(sb.p.Edges, e)
	return starlark.None, nil
}

func (sb *starlarkBuilder) glob(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &pattern); err != nil {
		return nil, err
	}
	if !sb.declared {
		return nil, fmt.Errorf("%s: project() must be called first", b.Name())
	}

	srcDir := sb.p.SrcDir
	if !filepath.IsAbs(srcDir) {
		srcDir = filepath.Join(sb.dir, srcDir)
	}
	matches, err := filepath.Glob(filepath.Join(srcDir, filepath.FromSlash(pattern)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(srcDir, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)

	values := make([]starlark.Value, len(paths))
	for i, p := range paths {
		values[i] = starlark.String(p)
	}
	return starlark.NewList(values), nil
}

// stringList converts an optional Starlark list of strings.
func stringList(fn, param string, list *starlark.List) ([]string, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: %s[%d] must be a string, got %s", fn, param, i, list.Index(i).Type())
		}
		out = append(out, s)
	}
	return out, nil
}
