package engine

import (
	"context"
	"os"
	"path/filepath"
)

// scanStage asks every Initial non-root node for dependencies discovered in
// its predecessors' content and wires the resolvable ones as scanned edges.
func (g *Graph) scanStage(ctx context.Context) {
	for i := range g.nodes {
		id := NodeID(i)
		if g.status[id] != StatusInitial || g.IsRoot(id) {
			continue
		}
		if !g.scanNode(ctx, id) {
			g.status[id] = StatusScanIncomplete
		}
	}
}

// scanNode reports whether every discovered dependency is available.
func (g *Graph) scanNode(ctx context.Context, id NodeID) bool {
	complete, discovered := g.nodes[id].Scan(ctx, g.sandbox, g.predecessorNodes(id))
	if !complete {
		g.log.Debug().Str("path", g.nodes[id].Path()).Msg("Scan reported unresolved dependencies")
	}

	for _, p := range discovered {
		from, ok := g.byPath[p]
		if !ok {
			if !g.discoveredFileExists(p) {
				g.log.Debug().Str("path", g.nodes[id].Path()).Str("dependency", p).Msg("Scanned dependency not available yet")
				complete = false
			}
			continue
		}
		if from == id {
			continue
		}
		if g.addEdge(from, id, EdgeScanned) {
			g.log.Debug().Str("from", p).Str("to", g.nodes[id].Path()).Msg("Added scanned edge")
		}
		if !g.status[from].IsSuccess() {
			complete = false
		}
	}
	return complete
}

func (g *Graph) discoveredFileExists(p string) bool {
	file := p
	if !filepath.IsAbs(p) {
		file = g.sandboxPath(p)
	}
	info, err := os.Stat(file)
	return err == nil && info.Mode().IsRegular()
}
