package engine

import (
	"context"
	"os"
)

// expandStage lets every successful node inject nodes and edges. Nodes added
// during the stage are visited on the next iteration.
func (g *Graph) expandStage(ctx context.Context) {
	count := len(g.nodes)
	for i := 0; i < count; i++ {
		id := NodeID(i)
		if g.status[id].IsSuccess() {
			g.expandNode(ctx, id)
		}
	}
}

func (g *Graph) expandNode(ctx context.Context, id NodeID) {
	newNodes, newEdges := g.nodes[id].Expand(ctx, g.sandbox, g.predecessorNodes(id))
	if len(newNodes) == 0 && len(newEdges) == 0 {
		return
	}

	var added []NodeID
	for _, n := range newNodes {
		if err := validateNode(n); err != nil {
			g.log.Warn().Err(err).Str("expander", g.describe(id)).Msg("Ignoring invalid expanded node")
			continue
		}
		if _, exists := g.byPath[n.Path()]; exists {
			continue
		}
		nid := g.insert(n)
		g.expanded[nid] = true
		added = append(added, nid)
	}

	for _, e := range newEdges {
		from, okFrom := g.byPath[e.From]
		to, okTo := g.byPath[e.To]
		if !okFrom || !okTo {
			g.log.Warn().
				Str("expander", g.describe(id)).
				Str("from", e.From).
				Str("to", e.To).
				Msg("Ignoring expanded edge with unknown endpoint")
			continue
		}
		if from == to || !g.addEdge(from, to, EdgeExpanded) {
			continue
		}
		if g.status[to] == StatusBuildFailed {
			g.resetFailed(to)
		}
	}

	for _, nid := range added {
		if st, ok := g.producedStatus(nid); ok {
			g.status[nid] = st
		}
	}

	if len(added) > 0 {
		g.log.Debug().Str("expander", g.describe(id)).Int("nodes", len(added)).Msg("Expanded graph")
	}
}

// producedStatus classifies an expanded node whose output was written during
// the current run, so dependents need not wait for it to be built.
func (g *Graph) producedStatus(id NodeID) (NodeStatus, bool) {
	target := g.nodes[id].Path()
	file := g.sandboxPath(target)
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() || info.ModTime().Before(g.runStart) {
		return "", false
	}
	digest, ok := g.digests.digest(file)
	if !ok {
		return "", false
	}
	if prev, ok := g.previous[target]; ok && prev == digest {
		return StatusBuildNotChanged, true
	}
	return StatusBuildSuccess, true
}

// resetFailed gives a failed node another chance, together with the
// dependents its failure had cascaded to.
func (g *Graph) resetFailed(id NodeID) {
	g.status[id] = StatusInitial
	queue := append([]NodeID(nil), g.outgoing[id]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.status[cur] != StatusAncestorFailed {
			continue
		}
		g.status[cur] = StatusInitial
		queue = append(queue, g.outgoing[cur]...)
	}
	g.log.Debug().Str("path", g.nodes[id].Path()).Msg("Reset failed node after expansion")
}
