package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// StatusCounts is the number of nodes per status.
type StatusCounts map[NodeStatus]int

// Total returns the number of counted nodes.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Failures returns the number of nodes in a failure status.
func (c StatusCounts) Failures() int {
	return c[StatusMountedFailed] + c[StatusBuildFailed] + c[StatusAncestorFailed]
}

// String renders non-zero counts in state machine order, e.g. "MC:2 BS:3".
func (c StatusCounts) String() string {
	parts := make([]string, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		if n := c[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", s.Short(), n))
		}
	}
	return strings.Join(parts, " ")
}

// MarshalZerologObject logs each non-zero count as a field.
func (c StatusCounts) MarshalZerologObject(e *zerolog.Event) {
	for _, s := range AllStatuses {
		if n := c[s]; n > 0 {
			e.Int(string(s), n)
		}
	}
}

// Result describes a completed Make call.
type Result struct {
	RunID      string        `json:"run_id"`
	Success    bool          `json:"success"`
	Converged  bool          `json:"converged"`
	Iterations int           `json:"iterations"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Counts     StatusCounts  `json:"counts"`
	// Stalled lists target paths left Initial or ScanIncomplete at the fixpoint.
	Stalled []string `json:"stalled,omitempty"`
}

// Summary counts the current statuses.
func (g *Graph) Summary() StatusCounts {
	counts := make(StatusCounts)
	for _, s := range g.status {
		counts[s]++
	}
	return counts
}

// LastResult returns the result of the most recent Make call, or nil.
func (g *Graph) LastResult() *Result {
	return g.lastResult
}

// Report returns the report written by the most recent Make call, or nil.
func (g *Graph) Report() *Report {
	return g.lastReport
}

// checkInvariants panics if the status map has drifted from the node arena.
func (g *Graph) checkInvariants(stage string) {
	if len(g.status) != len(g.nodes) {
		panic(NewInternalError("status map size differs from node count").
			WithOperation(stage).
			WithDetail("statuses", len(g.status)).
			WithDetail("nodes", len(g.nodes)))
	}
	for i := range g.nodes {
		if _, ok := g.status[NodeID(i)]; !ok {
			panic(NewInternalError("node has no status entry").
				WithOperation(stage).
				WithPath(g.nodes[i].Path()))
		}
	}
	if total := g.Summary().Total(); total != len(g.nodes) {
		panic(NewInternalError("status counts differ from node count").
			WithOperation(stage).
			WithDetail("counted", total))
	}
}
