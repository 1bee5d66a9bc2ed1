package c

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/openfroyo/yamake/pkg/command"
	"github.com/openfroyo/yamake/pkg/engine"
)

var includeRe = regexp.MustCompile(`(?m)^\s*#include\s+"([^"]+)"`)

// OFile is an object file compiled from its CFile predecessors.
type OFile struct {
	engine.BaseNode
	Target string
	// IncludePaths are extra header directories. Relative entries are taken
	// relative to the sandbox.
	IncludePaths []string
	Flags        []string
	Compiler     string
}

// NewOFile creates an object file node.
func NewOFile(target string, includePaths, flags []string) *OFile {
	return &OFile{Target: target, IncludePaths: includePaths, Flags: flags}
}

func (f *OFile) Tag() string  { return TagOFile }
func (f *OFile) Path() string { return f.Target }

// Build runs `gcc -c <flags> -I <sandbox> [-I <dir>]... -o <out> <sources>`.
func (f *OFile) Build(ctx context.Context, sandbox string, preds []engine.Node) bool {
	out := filepath.Join(sandbox, f.Target)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false
	}

	args := []string{"-c"}
	args = append(args, f.Flags...)
	args = append(args, "-I", sandbox)
	for _, dir := range f.IncludePaths {
		args = append(args, "-I", f.includeDir(sandbox, dir))
	}
	args = append(args, "-o", out)
	args = append(args, inputs(sandbox, preds, TagCFile)...)

	cmd := exec.CommandContext(ctx, tool(f.Compiler, DefaultCompiler), args...)
	return command.Run(ctx, sandbox, f.Target, cmd)
}

// Scan follows quoted includes of every CFile predecessor, recursing into
// the headers it finds. Headers resolved against the sandbox root are
// reported as written in the directive.
func (f *OFile) Scan(ctx context.Context, sandbox string, preds []engine.Node) (bool, []string) {
	s := &includeScanner{
		sandbox:      sandbox,
		includePaths: f.IncludePaths,
		visited:      make(map[string]bool),
		complete:     true,
		log:          zerolog.Ctx(ctx),
	}
	for _, p := range preds {
		if p.Tag() == TagCFile {
			s.scanFile(filepath.Join(sandbox, p.Path()))
		}
	}
	if !s.complete {
		s.log.Debug().Str("target", f.Target).Msg("Include scan incomplete")
	}
	return s.complete, s.found
}

func (f *OFile) includeDir(sandbox, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(sandbox, dir)
}

type includeScanner struct {
	sandbox      string
	includePaths []string
	visited      map[string]bool
	found        []string
	complete     bool
	log          *zerolog.Logger
}

func (s *includeScanner) scanFile(file string) {
	content, err := os.ReadFile(file)
	if err != nil {
		s.log.Debug().Str("file", file).Msg("File to scan not found")
		s.complete = false
		return
	}

	for _, m := range includeRe.FindAllSubmatch(content, -1) {
		header := string(m[1])
		if s.visited[header] {
			continue
		}
		s.visited[header] = true

		reported, file, ok := s.resolve(header)
		s.found = append(s.found, reported)
		if !ok {
			s.log.Debug().Str("header", header).Msg("Header not found in sandbox or include paths")
			s.complete = false
			continue
		}
		s.scanFile(file)
	}
}

// resolve locates a header and returns the path to report for it together
// with its location on disk.
func (s *includeScanner) resolve(header string) (reported, file string, ok bool) {
	candidate := filepath.Join(s.sandbox, header)
	if regular(candidate) {
		return header, candidate, true
	}
	for _, dir := range s.includePaths {
		if filepath.IsAbs(dir) {
			candidate = filepath.Join(dir, header)
			if regular(candidate) {
				return candidate, candidate, true
			}
			continue
		}
		rel := filepath.ToSlash(filepath.Join(dir, header))
		candidate = filepath.Join(s.sandbox, rel)
		if regular(candidate) {
			return rel, candidate, true
		}
	}
	return header, "", false
}

func regular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
