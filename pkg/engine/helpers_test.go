package engine

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// srcNode is a root artifact mounted from the source tree.
type srcNode struct {
	BaseNode
	path string
}

func (n *srcNode) Tag() string  { return "Src" }
func (n *srcNode) Path() string { return n.path }

// catNode concatenates its predecessors' content, optionally filtered by tag
// and transformed.
type catNode struct {
	BaseNode
	path      string
	tag       string
	only      string
	fail      bool
	noOutput  bool
	panics    bool
	transform func([]byte) []byte
	builds    atomic.Int32
}

func newCat(path string) *catNode { return &catNode{path: path, tag: "Cat"} }

func (n *catNode) Tag() string  { return n.tag }
func (n *catNode) Path() string { return n.path }

func (n *catNode) Build(_ context.Context, sandbox string, preds []Node) bool {
	n.builds.Add(1)
	if n.panics {
		panic("boom")
	}
	if n.fail {
		return false
	}
	if n.noOutput {
		return true
	}
	var buf bytes.Buffer
	for _, p := range preds {
		if n.only != "" && p.Tag() != n.only {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sandbox, p.Path()))
		if err != nil {
			return false
		}
		buf.Write(data)
	}
	out := buf.Bytes()
	if n.transform != nil {
		out = n.transform(out)
	}
	return writeOutput(sandbox, n.path, out) == nil
}

// scanCatNode is a catNode that depends on every "include <path>" line found
// in its predecessors.
type scanCatNode struct {
	catNode
}

func newScanCat(path string) *scanCatNode {
	return &scanCatNode{catNode: catNode{path: path, tag: "ScanCat"}}
}

func (n *scanCatNode) Scan(_ context.Context, sandbox string, preds []Node) (bool, []string) {
	complete := true
	var found []string
	for _, p := range preds {
		f, err := os.Open(filepath.Join(sandbox, p.Path()))
		if err != nil {
			complete = false
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if dep, ok := strings.CutPrefix(sc.Text(), "include "); ok {
				found = append(found, dep)
			}
		}
		f.Close()
	}
	return complete, found
}

// genNode is an expanded artifact written by its expander. Building it only
// checks the file is there.
type genNode struct {
	BaseNode
	path string
}

func (n *genNode) Tag() string  { return "Gen" }
func (n *genNode) Path() string { return n.path }

func (n *genNode) Build(_ context.Context, sandbox string, _ []Node) bool {
	_, err := os.Stat(filepath.Join(sandbox, n.path))
	return err == nil
}

// manifestNode copies a "name=content" list and expands one generated file
// plus one derived output per entry, all feeding collect.
type manifestNode struct {
	catNode
	collect string
	expands atomic.Int32
}

func newManifest(path, collect string) *manifestNode {
	return &manifestNode{catNode: catNode{path: path, tag: "Manifest"}, collect: collect}
}

func (n *manifestNode) Expand(_ context.Context, sandbox string, _ []Node) ([]Node, []Edge) {
	n.expands.Add(1)
	data, err := os.ReadFile(filepath.Join(sandbox, n.path))
	if err != nil {
		return nil, nil
	}
	var nodes []Node
	var edges []Edge
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		name, content, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		gen := "gen/" + name + ".txt"
		out := "gen/" + name + ".out"
		if err := writeOutput(sandbox, gen, []byte(content+"\n")); err != nil {
			return nil, nil
		}
		outNode := newCat(out)
		outNode.tag = "GenOut"
		nodes = append(nodes, &genNode{path: gen}, outNode)
		edges = append(edges,
			Edge{From: n.path, To: gen},
			Edge{From: gen, To: out},
			Edge{From: out, To: n.collect},
		)
	}
	return nodes, edges
}

// concurrencyNode records the maximum number of builds in flight.
type concurrencyNode struct {
	catNode
	active *atomic.Int32
	peak   *atomic.Int32
}

func (n *concurrencyNode) Build(ctx context.Context, sandbox string, preds []Node) bool {
	cur := n.active.Add(1)
	defer n.active.Add(-1)
	for {
		peak := n.peak.Load()
		if cur <= peak || n.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return n.catNode.Build(ctx, sandbox, preds)
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu         sync.Mutex
	iterations []int
	built      map[NodeStatus]int
	results    []Result
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{built: make(map[NodeStatus]int)}
}

func (o *recordingObserver) IterationCompleted(iteration int, _ StatusCounts) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.iterations = append(o.iterations, iteration)
}

func (o *recordingObserver) NodeBuilt(_ string, status NodeStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.built[status]++
}

func (o *recordingObserver) MakeCompleted(result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func writeOutput(sandbox, target string, data []byte) error {
	path := filepath.Join(sandbox, target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := writeOutput(dir, name, []byte(content)); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(data)
}

// mustAdd wraps AddNode and AddRootNode: mustAdd(t)(g.AddNode(n)).
func mustAdd(t *testing.T) func(NodeID, error) NodeID {
	t.Helper()
	return func(id NodeID, err error) NodeID {
		t.Helper()
		if err != nil {
			t.Fatalf("Failed to add node: %v", err)
		}
		return id
	}
}

func mustEdge(t *testing.T, g *Graph, from, to NodeID) {
	t.Helper()
	if err := g.AddEdge(from, to); err != nil {
		t.Fatalf("Failed to add edge: %v", err)
	}
}

func expectStatus(t *testing.T, g *Graph, path string, want NodeStatus) {
	t.Helper()
	got, ok := g.StatusOf(path)
	if !ok {
		t.Fatalf("Node %s not found in graph", path)
	}
	if got != want {
		t.Errorf("Expected %s to be %s, got %s", path, want, got)
	}
}

func stripComments(data []byte) []byte {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return []byte(strings.Join(out, "\n"))
}
