package engine

import "context"

// Node is a build artifact. The engine knows nothing else about it.
//
// Path is the node's output location relative to the sandbox and its identity
// within a graph. Build, Scan and Expand may be invoked many times over the
// fixpoint iterations of one Make call and must be idempotent.
type Node interface {
	// Tag returns the kind discriminator, e.g. "CFile" or "OFile".
	Tag() string

	// Path returns the target path relative to the sandbox root.
	Path() string

	// Build produces the output at sandbox/Path(). It is only called when
	// every predecessor is in a success status.
	Build(ctx context.Context, sandbox string, predecessors []Node) bool

	// Scan inspects the predecessors' content and returns additional
	// dependency paths. complete is false when some path cannot be resolved yet.
	Scan(ctx context.Context, sandbox string, predecessors []Node) (complete bool, discovered []string)

	// Expand returns nodes and edges to add to the graph once this node
	// has succeeded. Already present nodes and edges are ignored.
	Expand(ctx context.Context, sandbox string, predecessors []Node) ([]Node, []Edge)
}

// Edge is a dependency between two target paths, as returned by Expand.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// BaseNode provides the default behaviour for optional capabilities.
// Embed it and implement Tag and Path.
type BaseNode struct{}

// Build fails. Nodes that are never built (roots) need not override it.
func (BaseNode) Build(context.Context, string, []Node) bool { return false }

// Scan reports a complete scan with no discoveries.
func (BaseNode) Scan(context.Context, string, []Node) (bool, []string) { return true, nil }

// Expand adds nothing.
func (BaseNode) Expand(context.Context, string, []Node) ([]Node, []Edge) { return nil, nil }
