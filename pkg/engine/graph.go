package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// NodeID is a stable index of a node within its Graph.
type NodeID int

type edgeKey struct {
	from NodeID
	to   NodeID
}

type edgeRef struct {
	from NodeID
	kind EdgeKind
}

// Graph owns the nodes, their dependency edges and the per-node status map.
//
// A Graph is not safe for concurrent use. Make parallelises build actions
// internally but mutates the graph only between build passes.
type Graph struct {
	srcDir  string
	sandbox string
	opts    options
	log     zerolog.Logger

	// nodes is the arena; NodeID indexes into it and every per-node slice.
	nodes        []Node
	byPath       map[string]NodeID
	incoming     [][]edgeRef
	outgoing     [][]NodeID
	edges        map[edgeKey]EdgeKind
	declaredRoot []bool
	expanded     []bool

	status map[NodeID]NodeStatus

	// previous maps target paths to digests recorded by the last run.
	previous map[string]string
	runStart time.Time
	digests  *digestCache

	lastResult *Result
	lastReport *Report
}

// NewGraph creates an empty graph mounting roots from srcDir into sandbox.
func NewGraph(srcDir, sandbox string, opts ...Option) *Graph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Graph{
		srcDir:   srcDir,
		sandbox:  sandbox,
		opts:     o,
		log:      o.logger.With().Str("component", "engine").Logger(),
		byPath:   make(map[string]NodeID),
		edges:    make(map[edgeKey]EdgeKind),
		status:   make(map[NodeID]NodeStatus),
		previous: make(map[string]string),
		digests:  newDigestCache(o.cacheSize),
	}
}

// SourceDir returns the directory roots are mounted from.
func (g *Graph) SourceDir() string { return g.srcDir }

// Sandbox returns the directory outputs are written to.
func (g *Graph) Sandbox() string { return g.sandbox }

// ReportPath returns the location of the persisted report.
func (g *Graph) ReportPath() string {
	return filepath.Join(g.sandbox, g.opts.reportName)
}

// AddNode adds a node built from its predecessors.
func (g *Graph) AddNode(n Node) (NodeID, error) {
	return g.add(n, false)
}

// AddRootNode adds a node mounted from the source tree. Explicit edges into
// it are rejected.
func (g *Graph) AddRootNode(n Node) (NodeID, error) {
	return g.add(n, true)
}

func (g *Graph) add(n Node, root bool) (NodeID, error) {
	if err := validateNode(n); err != nil {
		return -1, err.WithOperation("add_node")
	}
	if existing, ok := g.byPath[n.Path()]; ok {
		return existing, NewStructuralError(ErrCodeDuplicatePath, "duplicate target path").
			WithPath(n.Path()).
			WithOperation("add_node").
			WithDetail("existing_tag", g.nodes[existing].Tag())
	}
	id := g.insert(n)
	g.declaredRoot[id] = root
	return id, nil
}

// insert appends n to the arena without validation.
func (g *Graph) insert(n Node) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byPath[n.Path()] = id
	g.incoming = append(g.incoming, nil)
	g.outgoing = append(g.outgoing, nil)
	g.declaredRoot = append(g.declaredRoot, false)
	g.expanded = append(g.expanded, false)
	g.status[id] = StatusInitial
	return id
}

func validateNode(n Node) *EngineError {
	if n == nil {
		return NewStructuralError(ErrCodeInvalidNode, "node is nil")
	}
	if n.Tag() == "" {
		return NewStructuralError(ErrCodeInvalidNode, "node has empty tag").WithPath(n.Path())
	}
	return validatePath(n.Path())
}

func validatePath(p string) *EngineError {
	if p == "" {
		return NewStructuralError(ErrCodeInvalidNode, "node has empty target path")
	}
	if !filepath.IsLocal(p) || filepath.Clean(p) != p {
		return NewStructuralError(ErrCodeInvalidNode, "target path must be clean and relative to the sandbox").
			WithPath(p)
	}
	return nil
}

// AddEdge adds an explicit edge: to depends on from.
func (g *Graph) AddEdge(from, to NodeID) error {
	if !g.valid(from) || !g.valid(to) {
		return NewStructuralError(ErrCodeUnknownNode, "edge endpoint is not a node of this graph").
			WithOperation("add_edge").
			WithDetail("from", int(from)).
			WithDetail("to", int(to))
	}
	if from == to {
		return NewStructuralError(ErrCodeSelfEdge, "node cannot depend on itself").
			WithPath(g.nodes[to].Path()).
			WithOperation("add_edge")
	}
	if g.declaredRoot[to] {
		return NewStructuralError(ErrCodeRootEdge, "explicit edge into a root node").
			WithPath(g.nodes[to].Path()).
			WithOperation("add_edge").
			WithDetail("from", g.nodes[from].Path())
	}
	if kind, ok := g.edges[edgeKey{from, to}]; ok && kind != EdgeExplicit {
		g.setEdgeKind(from, to, EdgeExplicit)
		return nil
	}
	g.addEdge(from, to, EdgeExplicit)
	return nil
}

// AddEdgeByPath adds an explicit edge between nodes identified by target path.
func (g *Graph) AddEdgeByPath(from, to string) error {
	fromID, ok := g.byPath[from]
	if !ok {
		return NewStructuralError(ErrCodeUnknownNode, "unknown edge source").
			WithPath(from).
			WithOperation("add_edge")
	}
	toID, ok := g.byPath[to]
	if !ok {
		return NewStructuralError(ErrCodeUnknownNode, "unknown edge target").
			WithPath(to).
			WithOperation("add_edge")
	}
	return g.AddEdge(fromID, toID)
}

// addEdge records an edge unless one already links from and to.
func (g *Graph) addEdge(from, to NodeID, kind EdgeKind) bool {
	key := edgeKey{from, to}
	if _, ok := g.edges[key]; ok {
		return false
	}
	g.edges[key] = kind
	g.incoming[to] = append(g.incoming[to], edgeRef{from: from, kind: kind})
	g.outgoing[from] = append(g.outgoing[from], to)
	return true
}

func (g *Graph) setEdgeKind(from, to NodeID, kind EdgeKind) {
	g.edges[edgeKey{from, to}] = kind
	for i := range g.incoming[to] {
		if g.incoming[to][i].from == from {
			g.incoming[to][i].kind = kind
		}
	}
}

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) Node {
	if !g.valid(id) {
		return nil
	}
	return g.nodes[id]
}

// Lookup returns the id of the node with the given target path.
func (g *Graph) Lookup(path string) (NodeID, bool) {
	id, ok := g.byPath[path]
	return id, ok
}

// Nodes returns all node ids sorted by target path.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	sort.Slice(ids, func(i, j int) bool {
		return g.nodes[ids[i]].Path() < g.nodes[ids[j]].Path()
	})
	return ids
}

// Status returns the status of a node.
func (g *Graph) Status(id NodeID) NodeStatus {
	return g.status[id]
}

// StatusOf returns the status of the node with the given target path.
func (g *Graph) StatusOf(path string) (NodeStatus, bool) {
	id, ok := g.byPath[path]
	if !ok {
		return "", false
	}
	return g.status[id], true
}

// IsExpanded reports whether the node was added by another node's Expand.
func (g *Graph) IsExpanded(id NodeID) bool {
	return g.valid(id) && g.expanded[id]
}

// EdgeKindOf returns the provenance of the edge from -> to.
func (g *Graph) EdgeKindOf(from, to NodeID) (EdgeKind, bool) {
	kind, ok := g.edges[edgeKey{from, to}]
	return kind, ok
}

// IsRoot reports whether the node is mounted from the source tree under the
// configured root policy.
func (g *Graph) IsRoot(id NodeID) bool {
	for _, e := range g.incoming[id] {
		if g.opts.rootPolicy == RootPolicyNoIncoming || e.kind != EdgeScanned {
			return false
		}
	}
	return true
}

// Predecessors returns the direct dependencies of a node in edge insertion order.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	preds := make([]NodeID, len(g.incoming[id]))
	for i, e := range g.incoming[id] {
		preds[i] = e.from
	}
	return preds
}

// Successors returns the direct dependents of a node.
func (g *Graph) Successors(id NodeID) []NodeID {
	return append([]NodeID(nil), g.outgoing[id]...)
}

func (g *Graph) predecessorNodes(id NodeID) []Node {
	preds := make([]Node, len(g.incoming[id]))
	for i, e := range g.incoming[id] {
		preds[i] = g.nodes[e.from]
	}
	return preds
}

// RootPredecessors returns the root nodes, as decided by IsRoot, from which
// id is reachable, sorted by target path.
func (g *Graph) RootPredecessors(id NodeID) []NodeID {
	if !g.valid(id) {
		return nil
	}
	visited := make(map[NodeID]bool)
	var roots []NodeID
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if g.IsRoot(cur) {
			if cur != id {
				roots = append(roots, cur)
			}
			continue
		}
		for _, e := range g.incoming[cur] {
			stack = append(stack, e.from)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return g.nodes[roots[i]].Path() < g.nodes[roots[j]].Path()
	})
	return roots
}

// sandboxPath returns the absolute location of a target path in the sandbox.
func (g *Graph) sandboxPath(target string) string {
	return filepath.Join(g.sandbox, filepath.FromSlash(target))
}

func (g *Graph) describe(id NodeID) string {
	n := g.nodes[id]
	return fmt.Sprintf("%s(%s)", n.Tag(), n.Path())
}
