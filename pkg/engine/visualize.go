package engine

import (
	"fmt"
	"path"
	"strings"
)

// ToMermaid renders the graph as a Mermaid flowchart. Edge arrows encode
// provenance and node classes encode status.
func (g *Graph) ToMermaid() string {
	var sb strings.Builder

	sb.WriteString("flowchart LR\n")
	for _, id := range g.Nodes() {
		n := g.nodes[id]
		sb.WriteString(fmt.Sprintf("  n%d[\"%s<br/>%s\"]:::%s\n",
			id, n.Tag(), path.Base(n.Path()), statusClass(g.status[id])))
	}
	for _, to := range g.Nodes() {
		for _, e := range g.incoming[to] {
			sb.WriteString(fmt.Sprintf("  n%d %s n%d\n", e.from, mermaidArrow(e.kind), to))
		}
	}
	for _, s := range AllStatuses {
		sb.WriteString(fmt.Sprintf("  classDef %s fill:%s\n", statusClass(s), statusColor(s)))
	}
	return sb.String()
}

// ToDOT renders the graph in Graphviz DOT format.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph yamake {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=\"filled,rounded\"];\n\n")

	for _, id := range g.Nodes() {
		n := g.nodes[id]
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\\n%s\", fillcolor=\"%s\"];\n",
			n.Path(), n.Tag(), n.Path(), statusColor(g.status[id])))
	}
	sb.WriteString("\n")
	for _, to := range g.Nodes() {
		for _, e := range g.incoming[to] {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
				g.nodes[e.from].Path(), g.nodes[to].Path(), dotEdgeStyle(e.kind)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func statusClass(s NodeStatus) string {
	return strings.ToLower(s.Short())
}

// statusColor returns a fill colour for visualizing node statuses.
func statusColor(s NodeStatus) string {
	switch s {
	case StatusMountedChanged, StatusBuildSuccess:
		return "lightgreen"
	case StatusMountedNotChanged, StatusBuildNotChanged, StatusBuildNotRequired:
		return "lightgray"
	case StatusMountedFailed, StatusBuildFailed:
		return "lightcoral"
	case StatusAncestorFailed:
		return "orange"
	case StatusScanIncomplete:
		return "khaki"
	case StatusRunning:
		return "lightblue"
	default:
		return "white"
	}
}

func mermaidArrow(kind EdgeKind) string {
	switch kind {
	case EdgeScanned:
		return "-.->"
	case EdgeExpanded:
		return "==>"
	default:
		return "-->"
	}
}

// dotEdgeStyle returns a DOT style string for edge provenance.
func dotEdgeStyle(kind EdgeKind) string {
	switch kind {
	case EdgeScanned:
		return "style=dashed, color=blue"
	case EdgeExpanded:
		return "style=bold, color=darkgreen"
	default:
		return "style=solid, color=black"
	}
}
