// Package engine implements the yamake incremental build engine.
//
// # Overview
//
// A Graph holds build artifacts (nodes) connected by dependency edges. Make
// brings the sandbox up to date by repeating four stages until nothing
// changes any more:
//
//  1. Mount - copy root nodes from the source tree into the sandbox
//  2. Expand - let successful nodes inject new nodes and edges
//  3. Scan - discover extra dependencies from predecessor content
//  4. Build - run the build actions of every ready node in parallel
//
// Convergence is detected with a whole-graph digest over every node's output
// digest and status. After the fixpoint the report is written to
// <sandbox>/make-report.yml and read back by the next run, so unchanged
// outputs are not rebuilt.
//
// # Nodes
//
// Artifact kinds implement Node. Embedding BaseNode supplies the optional
// capabilities:
//
//	type Doc struct {
//	    engine.BaseNode
//	    Target string
//	}
//
//	func (d *Doc) Tag() string  { return "Doc" }
//	func (d *Doc) Path() string { return d.Target }
//
// # Edges and roots
//
// Edges carry a provenance: explicit (AddEdge), scanned (discovered by Scan)
// or expanded (returned by Expand). With the default RootPolicyDeclared a node
// is a root, and therefore mounted rather than built, unless an explicit or
// expanded edge points at it.
//
// # Statuses
//
// Every node has exactly one NodeStatus per run. Roots end Mounted*, built
// nodes end Build* or AncestorFailed. ScanIncomplete is retried on every
// iteration. Data problems such as missing sources or failing compilers are
// statuses, never errors; only graph construction returns errors, and broken
// internal invariants panic.
//
// # Concurrency
//
// Build actions of one pass run on a bounded worker pool (WithWorkers). The
// graph and status map are only mutated between passes.
//
// # Example
//
//	g := engine.NewGraph("src", "build", engine.WithLogger(logger))
//	c, _ := g.AddRootNode(&Doc{Target: "hello.txt"})
//	o, _ := g.AddNode(&Copy{Target: "hello.out"})
//	_ = g.AddEdge(c, o)
//	if !g.Make(ctx) {
//	    // inspect g.Report() or g.Summary()
//	}
package engine
