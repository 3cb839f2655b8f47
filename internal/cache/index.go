// Package cache implements the fast-mode integrity index: a map from
// local file path to the digest the *previous* run's manifest expected
// there, consulted by the gate so unchanged files can skip rehashing
// (§4.4). Grounded on rclone's fs/walk directory-tree bookkeeping for
// the "build once up front, consult many times, never mutate" shape,
// adapted here to a flat path→digest index rather than a directory
// tree.
package cache

import "sort"

// Index is an immutable-after-build path→digest lookup. Per §9's design
// note ("a balanced ordered map... a sorted slice suffices, lookup is
// not performance-critical") it is backed by a plain map for O(1)
// lookups plus a sorted key slice kept only so callers can enumerate
// entries deterministically.
type Index struct {
	digests map[string]string
	keys    []string
	built   bool
}

// New returns an empty Index. Use a Builder to populate one from a
// manifest.
func New() *Index {
	return &Index{digests: make(map[string]string)}
}

// Lookup returns the expected digest for path and whether it is present.
func (idx *Index) Lookup(path string) (digest string, ok bool) {
	if idx == nil {
		return "", false
	}
	digest, ok = idx.digests[path]
	return digest, ok
}

// Len reports how many entries the index holds.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.digests)
}

// Keys returns the index's paths in sorted order.
func (idx *Index) Keys() []string {
	if idx == nil {
		return nil
	}
	return idx.keys
}

// Built reports whether the index was ever populated (as opposed to
// disabled because no prior manifest existed, §4.5 "if present: build
// IntegrityIndex from it; else: disable fast_mode").
func (idx *Index) Built() bool {
	return idx != nil && idx.built
}

// Builder accumulates entries before freezing them into an Index. The
// engine constructs one per fast-mode pass, inserts every ADD_OR_UPDATE
// entry found in the prior manifest, and calls Build once.
type Builder struct {
	digests map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{digests: make(map[string]string)}
}

// Insert records path as expected to hash to digest. A later Insert for
// the same path overwrites the earlier one (manifests are assumed
// entry-unique per path; if not, last write wins, matching a simple
// single pass over the entry list).
func (b *Builder) Insert(path, digest string) {
	b.digests[path] = digest
}

// InsertWithLZMASibling inserts path and its ".lzma" sibling under the
// same digest, since for v4/v5/v5.2 dialects the digest describes the
// *decompressed* content shared by both forms (§3 "IntegrityIndex").
// v7 must not call this: its nested dialect inserts only the exact
// paths named in the XML (§4.4 "exception: v7 inserts only the exact
// paths").
func (b *Builder) InsertWithLZMASibling(path, digest string) {
	b.Insert(path, digest)
	b.Insert(path+".lzma", digest)
}

// Build freezes the accumulated entries into an Index.
func (b *Builder) Build() *Index {
	keys := make([]string, 0, len(b.digests))
	for k := range b.digests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Index{digests: b.digests, keys: keys, built: true}
}
