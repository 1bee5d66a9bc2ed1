package config

import (
	"fmt"
	"strings"
)

// Project is a declarative build description: where sources live, where the
// sandbox goes, and the initial graph.
type Project struct {
	// Name identifies the project in run history.
	Name string `json:"name" yaml:"name" validate:"required"`

	// SrcDir is the source tree. Relative paths resolve against the
	// directory of the project file.
	SrcDir string `json:"src_dir" yaml:"src_dir" validate:"required"`

	// Sandbox is the build output tree. Relative paths resolve like SrcDir.
	Sandbox string `json:"sandbox" yaml:"sandbox" validate:"required"`

	// Workers bounds concurrent builds. Zero uses the CPU count.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`

	// RootPolicy is "declared" or "no-incoming".
	RootPolicy string `json:"root_policy,omitempty" yaml:"root_policy,omitempty" validate:"omitempty,oneof=declared no-incoming"`

	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"gte=0"`

	Nodes []NodeSpec `json:"nodes" yaml:"nodes" validate:"dive"`
	Edges []EdgeSpec `json:"edges,omitempty" yaml:"edges,omitempty" validate:"dive"`

	// File is the project file this was loaded from.
	File string `json:"-" yaml:"-"`
}

// NodeSpec declares one node.
type NodeSpec struct {
	// Kind selects the factory from the Registry, e.g. "OFile".
	Kind string `json:"kind" yaml:"kind" validate:"required"`

	// Path is the target path relative to the sandbox.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Root marks a node mounted from the source tree.
	Root bool `json:"root,omitempty" yaml:"root,omitempty"`

	// Flags are extra compiler flags (OFile).
	Flags []string `json:"flags,omitempty" yaml:"flags,omitempty"`

	// IncludePaths are extra header directories (OFile).
	IncludePaths []string `json:"include_paths,omitempty" yaml:"include_paths,omitempty"`

	// Libs are extra linker arguments (XFile).
	Libs []string `json:"libs,omitempty" yaml:"libs,omitempty"`

	// Output is the node fed by expanded nodes (Manifest).
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// GenDir is where a Manifest writes its generated files.
	GenDir string `json:"gen_dir,omitempty" yaml:"gen_dir,omitempty"`

	// Only restricts a Concat to predecessors of one kind.
	Only string `json:"only,omitempty" yaml:"only,omitempty"`

	// Tool overrides the compiler (OFile, XFile) or archiver (AFile).
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// EdgeSpec declares an explicit dependency between two node paths.
type EdgeSpec struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required"`
}

// ValidationError represents a problem found in a project file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in a project.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}
