package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// mountStage copies every Initial root from the source tree into the sandbox.
func (g *Graph) mountStage() {
	for i := range g.nodes {
		id := NodeID(i)
		if g.status[id] != StatusInitial || !g.IsRoot(id) {
			continue
		}
		g.status[id] = g.mountNode(id)
	}
}

func (g *Graph) mountNode(id NodeID) NodeStatus {
	target := g.nodes[id].Path()
	src := filepath.Join(g.srcDir, filepath.FromSlash(target))
	dst := g.sandboxPath(target)

	digest, ok := g.digests.digest(src)
	if !ok {
		g.log.Warn().Str("path", target).Str("source", src).Msg("Source file missing")
		return StatusMountedFailed
	}

	// Identical sandbox content is left untouched to keep its modification time.
	if current, ok := g.digests.digest(dst); !ok || current != digest {
		if err := copyFile(src, dst); err != nil {
			g.log.Error().Err(err).Str("path", target).Msg("Failed to mount source file")
			return StatusMountedFailed
		}
	}

	if prev, ok := g.previous[target]; ok && prev == digest {
		return StatusMountedNotChanged
	}
	g.log.Debug().Str("path", target).Msg("Mounted changed file")
	return StatusMountedChanged
}

// copyFile copies src to dst, creating parent directories and keeping the
// permission bits of src.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create sandbox file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return out.Close()
}
