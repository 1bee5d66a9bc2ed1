package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/yamake/pkg/engine"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "abc123", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("yamake %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestProjectLifecycle(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "yamake.yml")
	sandbox := filepath.Join(dir, "build")

	t.Run("init", func(t *testing.T) {
		out := mustExecute(t, "init", "--template", "file", "--name", "demo", dir)
		if !strings.Contains(out, "Created project file") {
			t.Errorf("Expected project file message, got %q", out)
		}
		if _, err := os.Stat(filepath.Join(dir, "src", "body.txt")); err != nil {
			t.Errorf("Expected template source to exist: %v", err)
		}
		if _, err := execute(t, "init", dir); err == nil {
			t.Error("Expected init to refuse an existing project file")
		}
	})

	t.Run("validate", func(t *testing.T) {
		out := mustExecute(t, "-f", file, "validate")
		if !strings.Contains(out, `project "demo" is valid (3 node(s), 2 edge(s))`) {
			t.Errorf("Unexpected validate output: %q", out)
		}
	})

	t.Run("make", func(t *testing.T) {
		out := mustExecute(t, "-f", file, "make", "--workers", "2")
		if !strings.Contains(out, "make succeeded: demo") {
			t.Errorf("Expected success summary, got %q", out)
		}
		data, err := os.ReadFile(filepath.Join(sandbox, "demo.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "# generated by yamake\nhello\n" {
			t.Errorf("Expected concatenated output, got %q", data)
		}

		out = mustExecute(t, "-f", file, "make")
		if !strings.Contains(out, string(engine.StatusMountedNotChanged)) {
			t.Errorf("Expected unchanged roots on second make, got %q", out)
		}
		if strings.Contains(out, string(engine.StatusBuildSuccess)) {
			t.Errorf("Expected nothing rebuilt on second make, got %q", out)
		}
	})

	var runID string
	t.Run("report", func(t *testing.T) {
		out := mustExecute(t, "-f", file, "report", "--json")
		var report engine.Report
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("Expected JSON report, got %q: %v", out, err)
		}
		if len(report.Nodes) != 3 {
			t.Errorf("Expected 3 report entries, got %d", len(report.Nodes))
		}
		runID = report.RunID

		table := mustExecute(t, "-f", file, "report")
		if !strings.Contains(table, "demo.txt") || !strings.Contains(table, "3 node(s)") {
			t.Errorf("Unexpected report table: %q", table)
		}
	})

	t.Run("history", func(t *testing.T) {
		out := mustExecute(t, "-f", file, "history")
		if n := strings.Count(out, "success"); n != 2 {
			t.Errorf("Expected 2 recorded runs, got %d in %q", n, out)
		}

		out = mustExecute(t, "-f", file, "history", "show", runID)
		if !strings.Contains(out, "Run "+runID) || !strings.Contains(out, "header.txt") {
			t.Errorf("Unexpected run details: %q", out)
		}
		if _, err := execute(t, "-f", file, "history", "show", "missing"); err == nil {
			t.Error("Expected error for an unknown run")
		}

		out = mustExecute(t, "-f", file, "history", "node", "demo.txt")
		if n := strings.Count(out, string(engine.StatusBuildSuccess)); n != 1 {
			t.Errorf("Expected one successful build of demo.txt, got %d in %q", n, out)
		}

		out = mustExecute(t, "-f", file, "history", "prune", "--keep", "1")
		if !strings.Contains(out, "Deleted 1 run(s)") {
			t.Errorf("Unexpected prune output: %q", out)
		}
	})

	t.Run("graph", func(t *testing.T) {
		out := mustExecute(t, "-f", file, "graph", "--format", "dot")
		if !strings.Contains(out, "digraph") {
			t.Errorf("Expected DOT output, got %q", out)
		}
		out = mustExecute(t, "-f", file, "graph")
		if !strings.Contains(out, "flowchart") {
			t.Errorf("Expected Mermaid output, got %q", out)
		}
		if _, err := execute(t, "-f", file, "graph", "--format", "svg"); err == nil {
			t.Error("Expected error for unsupported format")
		}
	})

	t.Run("clean", func(t *testing.T) {
		mustExecute(t, "-f", file, "clean", "--report-only")
		if _, err := os.Stat(filepath.Join(sandbox, engine.DefaultReportName)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected report to be removed, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(sandbox, "demo.txt")); err != nil {
			t.Errorf("Expected outputs to survive --report-only: %v", err)
		}

		mustExecute(t, "-f", file, "clean")
		if _, err := os.Stat(sandbox); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected sandbox to be removed, got %v", err)
		}
	})
}

func TestMakeFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "yamake.yml")
	project := `name: broken
src_dir: src
sandbox: build
nodes:
  - {kind: Source, path: missing.txt, root: true}
  - {kind: Copy, path: copy.txt}
edges:
  - {from: missing.txt, to: copy.txt}
`
	if err := os.WriteFile(file, []byte(project), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "-f", file, "make", "--no-history")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("Expected ExitError with code 1, got %v", err)
	}
	if !strings.Contains(out, "make failed: broken") {
		t.Errorf("Expected failure summary, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", ".yamake")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no history with --no-history, got %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "yamake.yml")
	project := `name: bad
src_dir: src
sandbox: build
nodes:
  - {kind: Nope, path: a.txt}
edges:
  - {from: a.txt, to: b.txt}
`
	if err := os.WriteFile(file, []byte(project), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "-f", file, "validate")
	if err == nil {
		t.Fatal("Expected validation to fail")
	}
	if !strings.Contains(out, "Nope") || !strings.Contains(out, "b.txt") {
		t.Errorf("Expected both problems listed, got %q", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "version"); err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.Contains(out, "yamake test") || !strings.Contains(out, "abc123") {
		t.Errorf("Unexpected version output: %q", out)
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/work", "/work", true},
		{"/work", "/work/src", true},
		{"/work/build", "/work/src", false},
		{"/work", "/workspace", false},
	}
	for _, tt := range tests {
		if got := contains(tt.dir, tt.path); got != tt.want {
			t.Errorf("contains(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
