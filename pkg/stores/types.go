package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/yamake/pkg/engine"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Run is one recorded Make call.
type Run struct {
	ID         string              `json:"id"`
	Project    string              `json:"project"`
	SrcDir     string              `json:"src_dir"`
	Sandbox    string              `json:"sandbox"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Success    bool                `json:"success"`
	Iterations int                 `json:"iterations"`
	NodeCount  int                 `json:"node_count"`
	Summary    engine.StatusCounts `json:"summary"`
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NodeResult is the final state of one node in a run.
type NodeResult struct {
	RunID    string            `json:"run_id"`
	Path     string            `json:"path"`
	Tag      string            `json:"tag"`
	Status   engine.NodeStatus `json:"status"`
	Digest   string            `json:"digest,omitempty"`
	Expanded bool              `json:"expanded"`
}

// NodeHistoryEntry is a node result joined with its run's start time.
type NodeHistoryEntry struct {
	NodeResult
	StartedAt time.Time `json:"started_at"`
	Success   bool      `json:"success"`
}

// Store defines the persistence layer for run history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Runs
	RecordRun(ctx context.Context, run *Run, results []NodeResult) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Node results
	ListNodeResults(ctx context.Context, runID string) ([]NodeResult, error)
	NodeHistory(ctx context.Context, path string, limit int) ([]NodeHistoryEntry, error)

	HealthCheck(ctx context.Context) error
}

// FromGraph captures the last Make result of g as a run record. It returns
// nil when g has not been made yet.
func FromGraph(project string, g *engine.Graph) (*Run, []NodeResult) {
	result := g.LastResult()
	if result == nil {
		return nil, nil
	}
	run := &Run{
		ID:         result.RunID,
		Project:    project,
		SrcDir:     g.SourceDir(),
		Sandbox:    g.Sandbox(),
		StartedAt:  result.StartedAt,
		FinishedAt: result.StartedAt.Add(result.Duration),
		Success:    result.Success,
		Iterations: result.Iterations,
		NodeCount:  result.Counts.Total(),
		Summary:    result.Counts,
	}

	report := g.Report()
	results := make([]NodeResult, 0, len(report.Nodes))
	for _, e := range report.Nodes {
		results = append(results, NodeResult{
			RunID:    run.ID,
			Path:     e.Path,
			Tag:      e.Tag,
			Status:   e.Status,
			Digest:   e.Digest,
			Expanded: e.Expanded,
		})
	}
	return run, results
}
