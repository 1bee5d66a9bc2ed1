package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startWatcher(t *testing.T, w *Watcher) (<-chan []string, context.CancelFunc) {
	t.Helper()
	changes := make(chan []string, 16)
	w.Debounce = 50 * time.Millisecond
	w.Logger = zerolog.Nop()
	w.OnChange = func(_ context.Context, changed []string) { changes <- changed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Expected Run to return nil on cancellation, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancellation")
		}
	})

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	return changes, cancel
}

func waitChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a change notification")
		return nil
	}
}

func expectQuiet(t *testing.T, changes <-chan []string) {
	t.Helper()
	select {
	case c := <-changes:
		t.Errorf("Expected no notification, got %v", c)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	src := t.TempDir()
	changes, _ := startWatcher(t, &Watcher{Paths: []string{src}})

	file := filepath.Join(src, "main.c")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(file, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := waitChange(t, changes)
	if len(got) != 1 || got[0] != file {
		t.Errorf("Expected one batched change for %s, got %v", file, got)
	}
	expectQuiet(t, changes)
}

func TestWatcher_IgnoresSandbox(t *testing.T) {
	src := t.TempDir()
	sandbox := filepath.Join(src, "build")
	if err := os.MkdirAll(sandbox, 0o755); err != nil {
		t.Fatal(err)
	}
	changes, _ := startWatcher(t, &Watcher{Paths: []string{src}, Ignore: []string{sandbox}})

	if err := os.WriteFile(filepath.Join(sandbox, "main.o"), []byte("obj"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, changes)

	if err := os.WriteFile(filepath.Join(src, "main.c"), []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := waitChange(t, changes)
	for _, p := range got {
		if filepath.Dir(p) == sandbox {
			t.Errorf("Expected sandbox events to be dropped, got %v", got)
		}
	}
}

func TestWatcher_NewDirectories(t *testing.T) {
	src := t.TempDir()
	changes, _ := startWatcher(t, &Watcher{Paths: []string{src}})

	sub := filepath.Join(src, "lib")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	waitChange(t, changes)

	file := filepath.Join(sub, "util.c")
	if err := os.WriteFile(file, []byte("void util(void) {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := waitChange(t, changes)
	found := false
	for _, p := range got {
		found = found || p == file
	}
	if !found {
		t.Errorf("Expected %s in %v", file, got)
	}
}

func TestWatcher_FileSavedByRename(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.Mkdir(src, 0o755); err != nil {
		t.Fatal(err)
	}
	project := filepath.Join(root, "yamake.yml")
	if err := os.WriteFile(project, []byte("name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changes, _ := startWatcher(t, &Watcher{Paths: []string{src, project}})

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, changes)

	for i, content := range []string{"name: b\n", "name: c\n"} {
		tmp := project + ".tmp"
		if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, project); err != nil {
			t.Fatal(err)
		}
		got := waitChange(t, changes)
		if len(got) != 1 || got[0] != project {
			t.Errorf("save %d: expected only %s, got %v", i+1, project, got)
		}
	}
}

func TestWatcher_Errors(t *testing.T) {
	w := &Watcher{Paths: []string{t.TempDir()}}
	if err := w.Run(context.Background()); err == nil {
		t.Error("Expected error without OnChange")
	}

	w = &Watcher{
		Paths:    []string{filepath.Join(t.TempDir(), "missing")},
		OnChange: func(context.Context, []string) {},
		Logger:   zerolog.Nop(),
	}
	if err := w.Run(context.Background()); err == nil {
		t.Error("Expected error when nothing can be watched")
	}
}

func TestWatcher_Ignored(t *testing.T) {
	w := &Watcher{Ignore: []string{"/work/build"}}
	tests := []struct {
		path string
		want bool
	}{
		{"/work/build", true},
		{"/work/build/a.o", true},
		{"/work/builder/a.c", false},
		{"/work/src/a.c", false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
