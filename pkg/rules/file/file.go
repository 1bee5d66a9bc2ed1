// Package file provides generic artifact kinds built in-process: plain
// sources, copies, concatenations, and manifests that expand into one
// generated file per entry.
package file

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/yamake/pkg/command"
	"github.com/openfroyo/yamake/pkg/engine"
)

// Tags of the generic artifact kinds.
const (
	TagSource   = "Source"
	TagCopy     = "Copy"
	TagConcat   = "Concat"
	TagManifest = "Manifest"
)

// Source is a file mounted from the source tree, or written by an expander.
type Source struct {
	engine.BaseNode
	Target string
}

// NewSource creates a source node.
func NewSource(target string) *Source { return &Source{Target: target} }

func (s *Source) Tag() string  { return TagSource }
func (s *Source) Path() string { return s.Target }

// Build succeeds if the file is present in the sandbox.
func (s *Source) Build(_ context.Context, sandbox string, _ []engine.Node) bool {
	info, err := os.Stat(filepath.Join(sandbox, s.Target))
	return err == nil && info.Mode().IsRegular()
}

// Copy duplicates its single predecessor.
type Copy struct {
	engine.BaseNode
	Target string
}

// NewCopy creates a copy node.
func NewCopy(target string) *Copy { return &Copy{Target: target} }

func (c *Copy) Tag() string  { return TagCopy }
func (c *Copy) Path() string { return c.Target }

func (c *Copy) Build(_ context.Context, sandbox string, preds []engine.Node) bool {
	if len(preds) != 1 {
		command.Record(sandbox, c.Target, "copy", nil,
			[]byte(fmt.Sprintf("expected exactly one predecessor, got %d\n", len(preds))))
		return false
	}
	data, err := os.ReadFile(filepath.Join(sandbox, preds[0].Path()))
	if err != nil {
		command.Record(sandbox, c.Target, "copy "+preds[0].Path(), nil, []byte(err.Error()+"\n"))
		return false
	}
	return emit(sandbox, c.Target, "copy "+preds[0].Path(), data)
}

// Concat joins its predecessors in edge order. When Only is set, predecessors
// with another tag are skipped.
type Concat struct {
	engine.BaseNode
	Target string
	Only   string
}

// NewConcat creates a concatenation node.
func NewConcat(target string) *Concat { return &Concat{Target: target} }

func (c *Concat) Tag() string  { return TagConcat }
func (c *Concat) Path() string { return c.Target }

func (c *Concat) Build(_ context.Context, sandbox string, preds []engine.Node) bool {
	var buf bytes.Buffer
	for _, p := range preds {
		if c.Only != "" && p.Tag() != c.Only {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sandbox, p.Path()))
		if err != nil {
			command.Record(sandbox, c.Target, "concat", nil, []byte(err.Error()+"\n"))
			return false
		}
		buf.Write(data)
	}
	return emit(sandbox, c.Target, "concat", buf.Bytes())
}

// emit writes an output and its build log.
func emit(sandbox, target, description string, data []byte) bool {
	out := filepath.Join(sandbox, target)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		command.Record(sandbox, target, description, nil, []byte(err.Error()+"\n"))
		return false
	}
	return command.Record(sandbox, target, description,
		[]byte(fmt.Sprintf("wrote %d bytes\n", len(data))), nil)
}
