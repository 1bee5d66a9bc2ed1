// Package watch reruns a callback when files under a source tree change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before OnChange fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes Paths recursively and calls OnChange once events have
// been quiet for Debounce. Calls never overlap; changes arriving during a
// call are delivered in the next one.
type Watcher struct {
	// Paths are directories (watched recursively) or single files.
	Paths []string

	// Ignore lists directories whose events are dropped, such as the sandbox.
	Ignore []string

	Debounce time.Duration

	// OnChange receives the sorted, de-duplicated changed paths.
	OnChange func(ctx context.Context, changed []string)

	Logger zerolog.Logger

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]struct{}

	// files are single-file Paths. They are watched through their parent
	// directory, so a save by rename keeps being seen. fileDirs holds those
	// parents when no recursive path covers them.
	files    map[string]struct{}
	fileDirs map[string]struct{}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if w.OnChange == nil {
		return fmt.Errorf("watch: OnChange is required")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw
	w.pending = make(map[string]struct{})

	w.files = make(map[string]struct{})
	w.fileDirs = make(map[string]struct{})

	watched := 0
	var trees []string
	for _, path := range w.Paths {
		info, err := os.Stat(path)
		if err != nil {
			w.Logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if !info.IsDir() {
			w.files[filepath.Clean(path)] = struct{}{}
			continue
		}
		if err := w.watchDirectory(path); err != nil {
			w.Logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			continue
		}
		trees = append(trees, path)
		watched++
	}
	for file := range w.files {
		dir := filepath.Dir(file)
		if within(trees, dir) {
			watched++
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.Logger.Warn().Err(err).Str("path", file).Msg("Failed to watch file")
			continue
		}
		w.fileDirs[dir] = struct{}{}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("watch: none of %v can be watched", w.Paths)
	}

	trigger := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.dispatch(ctx, trigger)
	}()
	defer wg.Wait()

	w.Logger.Info().Strs("paths", w.Paths).Dur("debounce", debounce).Msg("Watching for changes")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDirectory(event.Name); err != nil {
						w.Logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
					}
				}
			}

			w.Logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("File changed")
			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// dispatch runs OnChange serially for each debounced batch.
func (w *Watcher) dispatch(ctx context.Context, trigger <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			changed := w.drain()
			if len(changed) == 0 {
				continue
			}
			w.Logger.Info().Int("files", len(changed)).Msg("Changes detected")
			w.OnChange(ctx, changed)
		}
	}
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	clear(w.pending)
	sort.Strings(changed)
	return changed
}

// relevant drops attribute-only events, events under ignored directories
// and events for siblings of watched single files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
		return false
	}
	if _, ok := w.files[event.Name]; ok {
		return true
	}
	_, sibling := w.fileDirs[filepath.Dir(event.Name)]
	return !sibling
}

func (w *Watcher) ignored(path string) bool {
	return within(w.Ignore, path)
}

// within reports whether path is one of dirs or lies below one of them.
func within(dirs []string, path string) bool {
	for _, dir := range dirs {
		rel, err := filepath.Rel(dir, path)
		if err == nil && (rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))) {
			return true
		}
	}
	return false
}

// watchDirectory adds dirPath and its subdirectories, skipping ignored ones.
func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
