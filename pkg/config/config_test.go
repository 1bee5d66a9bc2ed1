package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/yamake/pkg/engine"
	"github.com/openfroyo/yamake/pkg/rules/file"
)

const helloYAML = `name: hello
src_dir: src
sandbox: build
workers: 2
nodes:
  - {kind: CFile, path: main.c, root: true}
  - {kind: OFile, path: main.o, flags: [-O2], include_paths: [include]}
  - {kind: XFile, path: hello, libs: [-lm]}
edges:
  - {from: main.c, to: main.o}
  - {from: main.o, to: hello}
`

const helloCUE = `
project: {
	name:    "hello"
	src_dir: "src"
	sandbox: "build"
	workers: 2
	nodes: [
		{kind: "CFile", path: "main.c", root: true},
		{kind: "OFile", path: "main.o", flags: ["-O2"], include_paths: ["include"]},
		{kind: "XFile", path: "hello", libs: ["-lm"]},
	]
	edges: [
		{from: "main.c", to: "main.o"},
		{from: "main.o", to: "hello"},
	]
}
`

const helloStar = `
project(name = "hello", src_dir = "src", sandbox = "build", workers = 2)
c = node("CFile", "main.c", root = True)
o = node("OFile", "main.o", flags = ["-O2"], include_paths = ["include"])
x = node("XFile", "hello", libs = ["-lm"])
edge(c, o)
edge(o, x)
`

func writeProject(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_Formats(t *testing.T) {
	want := []NodeSpec{
		{Kind: "CFile", Path: "main.c", Root: true},
		{Kind: "OFile", Path: "main.o", Flags: []string{"-O2"}, IncludePaths: []string{"include"}},
		{Kind: "XFile", Path: "hello", Libs: []string{"-lm"}},
	}
	wantEdges := []EdgeSpec{{From: "main.c", To: "main.o"}, {From: "main.o", To: "hello"}}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "yaml", file: "yamake.yml", content: helloYAML},
		{name: "cue", file: "yamake.cue", content: helloCUE},
		{name: "starlark", file: "yamake.star", content: helloStar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeProject(t, dir, tt.file, tt.content)

			p, err := Load(context.Background(), path)
			if err != nil {
				t.Fatalf("Failed to load project: %v", err)
			}
			if p.Name != "hello" || p.Workers != 2 {
				t.Errorf("Unexpected project header %+v", p)
			}
			if !reflect.DeepEqual(p.Nodes, want) {
				t.Errorf("Expected nodes %+v, got %+v", want, p.Nodes)
			}
			if !reflect.DeepEqual(p.Edges, wantEdges) {
				t.Errorf("Expected edges %+v, got %+v", wantEdges, p.Edges)
			}

			src, sandbox := p.Dirs()
			if src != filepath.Join(dir, "src") || sandbox != filepath.Join(dir, "build") {
				t.Errorf("Expected dirs relative to the project file, got %s and %s", src, sandbox)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "unsupported extension",
			file:    "yamake.toml",
			content: "",
			wantErr: "unsupported project file",
		},
		{
			name:    "yaml unknown field",
			file:    "yamake.yml",
			content: "name: x\nsrc_dir: s\nsandbox: b\ntargets: []\n",
			wantErr: "targets",
		},
		{
			name:    "yaml empty",
			file:    "yamake.yml",
			content: "",
			wantErr: "empty project file",
		},
		{
			name:    "yaml missing name",
			file:    "yamake.yml",
			content: "src_dir: s\nsandbox: b\nnodes: []\n",
			wantErr: "Project.Name",
		},
		{
			name:    "cue invalid root policy",
			file:    "yamake.cue",
			content: `name: "x", src_dir: "s", sandbox: "b", root_policy: "random", nodes: []`,
			wantErr: "root_policy",
		},
		{
			name:    "cue unknown field",
			file:    "yamake.cue",
			content: `name: "x", src_dir: "s", sandbox: "b", nodes: [{kind: "CFile", path: "a.c", colour: "red"}]`,
			wantErr: "colour",
		},
		{
			name:    "cue syntax",
			file:    "yamake.cue",
			content: `name: "x" +`,
			wantErr: "yamake.cue",
		},
		{
			name:    "starlark without project",
			file:    "yamake.star",
			content: `node("CFile", "a.c", root = True)`,
			wantErr: "never calls project()",
		},
		{
			name:    "starlark bad flag type",
			file:    "yamake.star",
			content: "project(name = \"x\", src_dir = \"s\", sandbox = \"b\")\nnode(\"OFile\", \"a.o\", flags = [1])\n",
			wantErr: "flags[0] must be a string",
		},
		{
			name:    "starlark runtime error",
			file:    "yamake.star",
			content: "project(name = \"x\", src_dir = \"s\", sandbox = \"b\")\nfail(\"boom\")\n",
			wantErr: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProject(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(context.Background(), path)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CrossChecks(t *testing.T) {
	p := &Project{
		Name:    "broken",
		SrcDir:  "src",
		Sandbox: "build",
		Nodes: []NodeSpec{
			{Kind: "CFile", Path: "a.c", Root: true},
			{Kind: "CFile", Path: "a.c", Root: true},
			{Kind: "Python", Path: "a.py"},
			{Kind: "OFile", Path: "../escape.o"},
		},
		Edges: []EdgeSpec{
			{From: "a.c", To: "missing.o"},
			{From: "a.py", To: "a.c"},
			{From: "a.py", To: "a.py"},
		},
	}

	err := p.Validate()
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Expected ValidationErrors, got %v", err)
	}
	for _, want := range []string{
		`duplicate path "a.c"`,
		`unknown kind "Python"`,
		`"../escape.o" must be clean and relative`,
		`unknown edge target "missing.o"`,
		`root node "a.c" cannot have explicit dependencies`,
		`"a.py" cannot depend on itself`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestProject_Build(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "src/greeting.txt", "hello\n")
	path := writeProject(t, dir, "yamake.yml", `name: copy
src_dir: src
sandbox: build
root_policy: declared
nodes:
  - {kind: Source, path: greeting.txt, root: true}
  - {kind: Copy, path: out/greeting.txt}
edges:
  - {from: greeting.txt, to: out/greeting.txt}
`)

	p, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load project: %v", err)
	}
	g, err := p.Build(engine.WithWorkers(1))
	if err != nil {
		t.Fatalf("Failed to build graph: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Expected 2 nodes, got %d", g.Len())
	}
	if !g.Make(context.Background()) {
		t.Fatalf("Expected make to succeed, statuses: %s", g.Summary())
	}
	data, err := os.ReadFile(filepath.Join(dir, "build", "out", "greeting.txt"))
	if err != nil || string(data) != "hello\n" {
		t.Errorf("Expected copied file, got %q (err=%v)", data, err)
	}
}

func TestProject_BuildManifestOptions(t *testing.T) {
	reg := NewRegistry()
	p := &Project{
		Name:    "manifest",
		SrcDir:  "/src",
		Sandbox: "/build",
		Nodes: []NodeSpec{
			{Kind: "Manifest", Path: "langs.json", Output: "all.txt", GenDir: "generated"},
			{Kind: "Concat", Path: "all.txt", Only: "Copy"},
		},
	}
	g, err := p.BuildWith(reg)
	if err != nil {
		t.Fatalf("Failed to build graph: %v", err)
	}
	id, _ := g.Lookup("langs.json")
	m, ok := g.Node(id).(*file.Manifest)
	if !ok || m.Collect != "all.txt" || m.GenDir != "generated" {
		t.Errorf("Unexpected manifest node %#v", g.Node(id))
	}
	id, _ = g.Lookup("all.txt")
	if cat, ok := g.Node(id).(*file.Concat); !ok || cat.Only != "Copy" {
		t.Errorf("Unexpected concat node %#v", g.Node(id))
	}
}

type stubNode struct {
	engine.BaseNode
	path string
}

func (n stubNode) Tag() string  { return "Stub" }
func (n stubNode) Path() string { return n.path }

func TestRegistry_Custom(t *testing.T) {
	reg := NewRegistry()
	if reg.Has("Stub") {
		t.Fatal("Expected Stub to be unknown")
	}
	reg.Register("Stub", func(s NodeSpec) (engine.Node, error) { return stubNode{path: s.Path}, nil })

	kinds := reg.Kinds()
	for _, want := range []string{"AFile", "CFile", "Manifest", "Stub", "XFile"} {
		found := false
		for _, k := range kinds {
			found = found || k == want
		}
		if !found {
			t.Errorf("Expected kind %s in %v", want, kinds)
		}
	}

	p := &Project{Name: "stub", SrcDir: "s", Sandbox: "b", Nodes: []NodeSpec{{Kind: "Stub", Path: "x"}}}
	if _, err := p.BuildWith(reg); err != nil {
		t.Errorf("Expected custom kind to build, got %v", err)
	}
	if err := p.Validate(); err == nil {
		t.Error("Expected default registry to reject the custom kind")
	}
}

func TestStarlark_Glob(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "src/b.c", "")
	writeProject(t, dir, "src/a.c", "")
	writeProject(t, dir, "src/a.h", "")
	path := writeProject(t, dir, "yamake.star", `
project(name = "glob", src_dir = "src", sandbox = "build")

def objects(app):
    for src in glob("*.c"):
        obj = node("OFile", src[:-2] + ".o")
        edge(node("CFile", src, root = True), obj)
        edge(obj, app)

objects(node("XFile", "app"))
`)

	p, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load script: %v", err)
	}
	var paths []string
	for _, n := range p.Nodes {
		paths = append(paths, n.Path)
	}
	want := []string{"app", "a.o", "a.c", "b.o", "b.c"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Expected nodes %v, got %v", want, paths)
	}
	if len(p.Edges) != 4 {
		t.Errorf("Expected 4 edges, got %+v", p.Edges)
	}
}

func TestStarlark_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := NewStarlarkEvaluator(0)
	_, err := ev.Evaluate(ctx, "loop.star", []byte(`
def spin():
    for i in range(100000000):
        pass
spin()
project(name = "x", src_dir = "s", sandbox = "b")
`), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "evaluation aborted") {
		t.Errorf("Expected cancelled evaluation, got %v", err)
	}
}
