// Package layout maps digests to locations in the sharded store tree.
//
// Structure (ShardLength 2):
//
//	<root>/ab/cd1234...      asset bytes, named by the digest suffix
//	<root>/ab/cd1234....meta sidecar metadata
//	<root>/.tmp/             in-flight writes, renamed into place when complete
//
// Paths are never persisted; they are recomputed from the digest on every
// operation so the root can be moved freely.
package layout

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

// DefaultShardLength is the number of digest characters naming a shard directory.
const DefaultShardLength = 2

// MaxShardLength bounds the shard prefix.
const MaxShardLength = 4

// SidecarExt is appended to the asset filename for its metadata sidecar.
const SidecarExt = ".meta"

// TempDirName is the directory for in-flight writes. It can never collide
// with a shard name because shard names are hex.
const TempDirName = ".tmp"

// MarkerName is the store marker file written at the root.
const MarkerName = ".assetstore"

// Layout computes paths for a store rooted at Root.
type Layout struct {
	Root        string
	ShardLength int
}

// New returns a Layout, substituting the default shard length when n is zero.
func New(root string, n int) (Layout, error) {
	if n == 0 {
		n = DefaultShardLength
	}
	if n < 1 || n > MaxShardLength {
		return Layout{}, fmt.Errorf("shard length must be between 1 and %d, got %d", MaxShardLength, n)
	}
	if root == "" {
		return Layout{}, fmt.Errorf("layout root is required")
	}
	return Layout{Root: root, ShardLength: n}, nil
}

func (l Layout) shardLength() int {
	if l.ShardLength == 0 {
		return DefaultShardLength
	}
	return l.ShardLength
}

// Split returns the shard and file name for d.
func (l Layout) Split(d digest.Digest) (shard, name string) {
	n := l.shardLength()
	s := d.String()
	return s[:n], s[n:]
}

// ShardDir returns the directory holding d.
func (l Layout) ShardDir(d digest.Digest) string {
	shard, _ := l.Split(d)
	return filepath.Join(l.Root, shard)
}

// Path returns the asset file path for d. d must be a validated digest.
func (l Layout) Path(d digest.Digest) string {
	shard, name := l.Split(d)
	return filepath.Join(l.Root, shard, name)
}

// SidecarPath returns the metadata sidecar path for d.
func (l Layout) SidecarPath(d digest.Digest) string {
	return l.Path(d) + SidecarExt
}

// Key returns the slash-separated key for d under prefix, used by object
// storage backends that mirror the on-disk layout.
func (l Layout) Key(prefix string, d digest.Digest) string {
	shard, name := l.Split(d)
	return path.Join(prefix, shard, name)
}

// TempDir returns the directory for in-flight writes.
func (l Layout) TempDir() string {
	return filepath.Join(l.Root, TempDirName)
}

// MarkerPath returns the store marker path.
func (l Layout) MarkerPath() string {
	return filepath.Join(l.Root, MarkerName)
}

// IsShard reports whether name is a valid shard directory name.
func (l Layout) IsShard(name string) bool {
	if len(name) != l.shardLength() {
		return false
	}
	_, err := digest.Parse(name + strings.Repeat("0", digest.Length-len(name)))
	return err == nil
}

// ParseEntry reconstructs the digest of an asset file found at shard/name.
// Sidecars, temp files and anything else that is not an exact digest split
// return false.
func (l Layout) ParseEntry(shard, name string) (digest.Digest, bool) {
	if !l.IsShard(shard) {
		return "", false
	}
	d, err := digest.Parse(shard + name)
	if err != nil {
		return "", false
	}
	return d, true
}

// ParseKey reconstructs a digest from a key produced by Key.
func (l Layout) ParseKey(prefix, key string) (digest.Digest, bool) {
	rel := strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/"))
	rel = strings.TrimPrefix(rel, "/")
	shard, name, ok := strings.Cut(rel, "/")
	if !ok {
		return "", false
	}
	return l.ParseEntry(shard, name)
}
