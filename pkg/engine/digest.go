package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// noDigest stands for an absent file in the whole-graph digest.
const noDigest = "none"

// FileDigest returns the lowercase hex SHA-256 of the file content.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type cachedDigest struct {
	size    int64
	modTime time.Time
	digest  string
}

// digestCache memoises file digests, keyed by path and validated against
// size and modification time. A nil cache hashes on every call.
type digestCache struct {
	cache *lru.Cache[string, cachedDigest]
}

func newDigestCache(size int) *digestCache {
	if size <= 0 {
		return &digestCache{}
	}
	cache, err := lru.New[string, cachedDigest](size)
	if err != nil {
		return &digestCache{}
	}
	return &digestCache{cache: cache}
}

// digest returns the digest of a regular file, or false if it cannot be read.
func (c *digestCache) digest(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if c.cache != nil {
		if entry, ok := c.cache.Get(path); ok &&
			entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.digest, true
		}
	}

	d, err := FileDigest(path)
	if err != nil {
		return "", false
	}
	if c.cache != nil {
		c.cache.Add(path, cachedDigest{size: info.Size(), modTime: info.ModTime(), digest: d})
	}
	return d, true
}

// graphDigest hashes every node's output digest and status in path order.
func (g *Graph) graphDigest() string {
	var sb strings.Builder
	for _, id := range g.Nodes() {
		d, ok := g.digests.digest(g.sandboxPath(g.nodes[id].Path()))
		if !ok {
			d = noDigest
		}
		sb.WriteString(d)
		sb.WriteString(string(g.status[id]))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
