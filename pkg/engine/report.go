package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Report is the persisted outcome of a Make call, read back by the next run
// to classify unchanged content.
type Report struct {
	RunID       string        `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	GeneratedAt time.Time     `yaml:"generated_at" json:"generated_at"`
	Nodes       []ReportEntry `yaml:"nodes" json:"nodes"`
}

// ReportEntry describes one node. Entries are sorted by Path.
type ReportEntry struct {
	Path         string             `yaml:"pathbuf" json:"pathbuf"`
	Status       NodeStatus         `yaml:"status" json:"status"`
	Digest       string             `yaml:"digest,omitempty" json:"digest,omitempty"`
	AbsolutePath string             `yaml:"absolute_path,omitempty" json:"absolute_path,omitempty"`
	Stdout       string             `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr       string             `yaml:"stderr,omitempty" json:"stderr,omitempty"`
	Predecessors []PredecessorEntry `yaml:"predecessors" json:"predecessors"`
	Expanded     bool               `yaml:"expanded" json:"expanded"`
	Tag          string             `yaml:"tag" json:"tag"`
}

// PredecessorEntry is a predecessor and its status at the end of the run.
type PredecessorEntry struct {
	Path   string     `yaml:"pathbuf" json:"pathbuf"`
	Status NodeStatus `yaml:"status" json:"status"`
}

// LoadReport reads a report file. A missing file yields an error satisfying
// errors.Is(err, os.ErrNotExist).
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the report atomically.
func (r *Report) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

// Digests maps target paths to their recorded digests.
func (r *Report) Digests() map[string]string {
	digests := make(map[string]string, len(r.Nodes))
	for _, e := range r.Nodes {
		if e.Digest != "" {
			digests[e.Path] = e.Digest
		}
	}
	return digests
}

// Counts returns the number of entries per status.
func (r *Report) Counts() StatusCounts {
	counts := make(StatusCounts)
	for _, e := range r.Nodes {
		counts[e.Status]++
	}
	return counts
}

// Entry returns the entry for a target path.
func (r *Report) Entry(path string) (ReportEntry, bool) {
	for _, e := range r.Nodes {
		if e.Path == path {
			return e, true
		}
	}
	return ReportEntry{}, false
}

// buildReport snapshots the graph. Nodes() is already sorted by path.
func (g *Graph) buildReport(runID string) *Report {
	r := &Report{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Nodes:       make([]ReportEntry, 0, len(g.nodes)),
	}
	for _, id := range g.Nodes() {
		n := g.nodes[id]
		file := g.sandboxPath(n.Path())
		entry := ReportEntry{
			Path:         n.Path(),
			Status:       g.status[id],
			Predecessors: make([]PredecessorEntry, 0, len(g.incoming[id])),
			Expanded:     g.expanded[id],
			Tag:          n.Tag(),
		}
		if d, ok := g.digests.digest(file); ok {
			entry.Digest = d
		}
		if abs, err := filepath.Abs(file); err == nil {
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				entry.AbsolutePath = resolved
			}
		}
		stdout, stderr := LogPaths(g.sandbox, n.Path())
		if _, err := os.Stat(stdout); err == nil {
			entry.Stdout = stdout
		}
		if _, err := os.Stat(stderr); err == nil {
			entry.Stderr = stderr
		}
		for _, e := range g.incoming[id] {
			entry.Predecessors = append(entry.Predecessors, PredecessorEntry{
				Path:   g.nodes[e.from].Path(),
				Status: g.status[e.from],
			})
		}
		r.Nodes = append(r.Nodes, entry)
	}
	return r
}

// LogsDir is the directory under the sandbox holding per-node build logs.
const LogsDir = "logs"

// LogPaths returns the stdout and stderr log locations for a target.
func LogPaths(sandbox, target string) (stdout, stderr string) {
	base := filepath.Join(sandbox, LogsDir, filepath.FromSlash(target))
	return base + ".stdout", base + ".stderr"
}
