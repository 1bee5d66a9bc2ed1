package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestGraph_AddNode_DuplicatePath(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())

	first := mustAdd(t)(g.AddRootNode(&srcNode{path: "a.txt"}))
	id, err := g.AddNode(newCat("a.txt"))

	if err == nil {
		t.Fatal("Expected duplicate path error")
	}
	if !errors.Is(err, ErrDuplicatePath) {
		t.Errorf("Expected ErrDuplicatePath, got: %v", err)
	}
	if !IsStructural(err) {
		t.Errorf("Expected structural error, got: %v", err)
	}
	if id != first {
		t.Errorf("Expected existing id %d, got %d", first, id)
	}
	if g.Len() != 1 {
		t.Errorf("Expected 1 node, got %d", g.Len())
	}
}

func TestGraph_AddNode_InvalidPath(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"absolute", "/etc/passwd"},
		{"parent", "../outside.txt"},
		{"unclean", "a/../b.txt"},
		{"double slash", "a//b.txt"},
		{"dot prefix", "./a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(t.TempDir(), t.TempDir())
			_, err := g.AddNode(newCat(tt.path))
			if !errors.Is(err, ErrInvalidNode) {
				t.Errorf("Expected ErrInvalidNode for %q, got: %v", tt.path, err)
			}
		})
	}
}

func TestGraph_AddNode_Nil(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())
	if _, err := g.AddNode(nil); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("Expected ErrInvalidNode, got: %v", err)
	}
}

func TestGraph_AddEdge_Errors(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())
	root := mustAdd(t)(g.AddRootNode(&srcNode{path: "a.txt"}))
	other := mustAdd(t)(g.AddRootNode(&srcNode{path: "b.txt"}))
	built := mustAdd(t)(g.AddNode(newCat("c.out")))

	if err := g.AddEdge(root, NodeID(42)); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Expected ErrUnknownNode, got: %v", err)
	}
	if err := g.AddEdge(built, built); !errors.Is(err, ErrSelfEdge) {
		t.Errorf("Expected ErrSelfEdge, got: %v", err)
	}
	if err := g.AddEdge(root, other); !errors.Is(err, ErrRootEdge) {
		t.Errorf("Expected ErrRootEdge, got: %v", err)
	}
	if err := g.AddEdgeByPath("missing.txt", "c.out"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Expected ErrUnknownNode for unknown source, got: %v", err)
	}
	if err := g.AddEdgeByPath("a.txt", "c.out"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestGraph_AddEdge_Idempotent(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())
	a := mustAdd(t)(g.AddRootNode(&srcNode{path: "a.txt"}))
	b := mustAdd(t)(g.AddNode(newCat("b.out")))

	mustEdge(t, g, a, b)
	mustEdge(t, g, a, b)

	if preds := g.Predecessors(b); len(preds) != 1 {
		t.Fatalf("Expected 1 predecessor, got %d", len(preds))
	}
	kind, ok := g.EdgeKindOf(a, b)
	if !ok || kind != EdgeExplicit {
		t.Errorf("Expected explicit edge, got %q (exists=%v)", kind, ok)
	}
}

func TestGraph_IsRoot_Policies(t *testing.T) {
	build := func(policy RootPolicy) (*Graph, NodeID, NodeID, NodeID) {
		g := NewGraph(t.TempDir(), t.TempDir(), WithRootPolicy(policy))
		a := mustAdd(t)(g.AddRootNode(&srcNode{path: "a.txt"}))
		scanned := mustAdd(t)(g.AddNode(newCat("scanned.txt")))
		expanded := mustAdd(t)(g.AddNode(newCat("expanded.txt")))
		g.addEdge(a, scanned, EdgeScanned)
		g.addEdge(a, expanded, EdgeExpanded)
		return g, a, scanned, expanded
	}

	t.Run("declared", func(t *testing.T) {
		g, a, scanned, expanded := build(RootPolicyDeclared)
		if !g.IsRoot(a) {
			t.Error("Expected node without edges to be a root")
		}
		if !g.IsRoot(scanned) {
			t.Error("Expected node with only scanned edges to be a root")
		}
		if g.IsRoot(expanded) {
			t.Error("Expected node with an expanded edge to be built")
		}
	})

	t.Run("no-incoming", func(t *testing.T) {
		g, a, scanned, expanded := build(RootPolicyNoIncoming)
		if !g.IsRoot(a) {
			t.Error("Expected node without edges to be a root")
		}
		if g.IsRoot(scanned) || g.IsRoot(expanded) {
			t.Error("Expected nodes with incoming edges to be built")
		}
	})
}

func TestGraph_RootPredecessors(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())
	mainC := mustAdd(t)(g.AddRootNode(&srcNode{path: "main.c"}))
	addC := mustAdd(t)(g.AddRootNode(&srcNode{path: "add.c"}))
	unrelated := mustAdd(t)(g.AddRootNode(&srcNode{path: "other.c"}))
	mainO := mustAdd(t)(g.AddNode(newCat("main.o")))
	addO := mustAdd(t)(g.AddNode(newCat("add.o")))
	app := mustAdd(t)(g.AddNode(newCat("app")))

	mustEdge(t, g, mainC, mainO)
	mustEdge(t, g, addC, addO)
	mustEdge(t, g, mainO, app)
	mustEdge(t, g, addO, app)
	_ = unrelated

	roots := g.RootPredecessors(app)
	if len(roots) != 2 {
		t.Fatalf("Expected 2 root predecessors, got %d", len(roots))
	}
	if g.Node(roots[0]).Path() != "add.c" || g.Node(roots[1]).Path() != "main.c" {
		t.Errorf("Expected [add.c main.c], got [%s %s]", g.Node(roots[0]).Path(), g.Node(roots[1]).Path())
	}

	if roots := g.RootPredecessors(mainC); len(roots) != 0 {
		t.Errorf("Expected a root to have no root predecessors, got %d", len(roots))
	}
}

func TestGraph_RootPredecessors_ScannedEdges(t *testing.T) {
	tests := []struct {
		policy RootPolicy
		want   []string
	}{
		{RootPolicyDeclared, []string{"main.c", "util.h"}},
		{RootPolicyNoIncoming, []string{"config.h", "main.c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			g := NewGraph(t.TempDir(), t.TempDir(), WithRootPolicy(tt.policy))
			mainC := mustAdd(t)(g.AddRootNode(&srcNode{path: "main.c"}))
			utilH := mustAdd(t)(g.AddRootNode(&srcNode{path: "util.h"}))
			configH := mustAdd(t)(g.AddRootNode(&srcNode{path: "config.h"}))
			mainO := mustAdd(t)(g.AddNode(newCat("main.o")))

			mustEdge(t, g, mainC, mainO)
			g.addEdge(utilH, mainO, EdgeScanned)
			g.addEdge(configH, utilH, EdgeScanned)

			roots := g.RootPredecessors(mainO)
			got := make([]string, len(roots))
			for i, r := range roots {
				got[i] = g.Node(r).Path()
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGraph_NodesSortedByPath(t *testing.T) {
	g := NewGraph(t.TempDir(), t.TempDir())
	mustAdd(t)(g.AddRootNode(&srcNode{path: "z.txt"}))
	mustAdd(t)(g.AddRootNode(&srcNode{path: "a.txt"}))
	mustAdd(t)(g.AddRootNode(&srcNode{path: "m/b.txt"}))

	ids := g.Nodes()
	want := []string{"a.txt", "m/b.txt", "z.txt"}
	for i, id := range ids {
		if g.Node(id).Path() != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], g.Node(id).Path())
		}
	}
}
