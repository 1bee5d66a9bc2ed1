package c

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/openfroyo/yamake/pkg/command"
	"github.com/openfroyo/yamake/pkg/engine"
)

// Tags of the C artifact kinds.
const (
	TagCFile = "CFile"
	TagHFile = "HFile"
	TagOFile = "OFile"
	TagAFile = "AFile"
	TagXFile = "XFile"
)

// Default tool names, looked up on PATH.
const (
	DefaultCompiler = "gcc"
	DefaultArchiver = "ar"
)

// CFile is a C source file mounted from the source tree.
type CFile struct {
	engine.BaseNode
	Target string
}

// NewCFile creates a C source node.
func NewCFile(target string) *CFile { return &CFile{Target: target} }

func (f *CFile) Tag() string  { return TagCFile }
func (f *CFile) Path() string { return f.Target }

// Build succeeds if the file is present in the sandbox, which is the case
// for generated sources written by an expander.
func (f *CFile) Build(_ context.Context, sandbox string, _ []engine.Node) bool {
	return present(sandbox, f.Target)
}

// HFile is a C header mounted from the source tree.
type HFile struct {
	engine.BaseNode
	Target string
}

// NewHFile creates a header node.
func NewHFile(target string) *HFile { return &HFile{Target: target} }

func (f *HFile) Tag() string  { return TagHFile }
func (f *HFile) Path() string { return f.Target }

// Build succeeds if the header is present in the sandbox.
func (f *HFile) Build(_ context.Context, sandbox string, _ []engine.Node) bool {
	return present(sandbox, f.Target)
}

// AFile is a static archive of its OFile predecessors.
type AFile struct {
	engine.BaseNode
	Target   string
	Archiver string
}

// NewAFile creates an archive node.
func NewAFile(target string) *AFile { return &AFile{Target: target} }

func (f *AFile) Tag() string  { return TagAFile }
func (f *AFile) Path() string { return f.Target }

// Build runs `ar rcs <out> <objects>`. The archive is recreated from scratch
// so removed objects do not linger.
func (f *AFile) Build(ctx context.Context, sandbox string, preds []engine.Node) bool {
	out := filepath.Join(sandbox, f.Target)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false
	}
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return false
	}

	args := []string{"rcs", out}
	args = append(args, inputs(sandbox, preds, TagOFile)...)
	cmd := exec.CommandContext(ctx, tool(f.Archiver, DefaultArchiver), args...)
	return command.Run(ctx, sandbox, f.Target, cmd)
}

// XFile is an executable linked from OFile and AFile predecessors.
type XFile struct {
	engine.BaseNode
	Target   string
	Libs     []string
	Compiler string
}

// NewXFile creates an executable node.
func NewXFile(target string) *XFile { return &XFile{Target: target} }

func (f *XFile) Tag() string  { return TagXFile }
func (f *XFile) Path() string { return f.Target }

// Build runs `gcc -o <out> <objects> <archives> <libs>`. Archives come after
// objects so the linker resolves their symbols.
func (f *XFile) Build(ctx context.Context, sandbox string, preds []engine.Node) bool {
	out := filepath.Join(sandbox, f.Target)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false
	}

	args := []string{"-o", out}
	args = append(args, inputs(sandbox, preds, TagOFile)...)
	args = append(args, inputs(sandbox, preds, TagAFile)...)
	args = append(args, f.Libs...)
	cmd := exec.CommandContext(ctx, tool(f.Compiler, DefaultCompiler), args...)
	return command.Run(ctx, sandbox, f.Target, cmd)
}

// inputs returns the sandbox paths of predecessors with the given tag.
func inputs(sandbox string, preds []engine.Node, tag string) []string {
	var paths []string
	for _, p := range preds {
		if p.Tag() == tag {
			paths = append(paths, filepath.Join(sandbox, p.Path()))
		}
	}
	return paths
}

func tool(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func present(sandbox, target string) bool {
	return regular(filepath.Join(sandbox, target))
}
