// Package manifest implements the five manifest dialect parsers
// (v4, v5, v5.2, v7, Android) behind one shared Entry type and Dialect
// capability interface, per §9's "Parser polymorphism" design note.
// Grounded line-for-line on drwebmirror.c's cacheN/updateN parsing
// blocks; reshaped from an in-place fscanf/strchr scan into a value
// returning a slice, the way rclone's fs/hash and backend parsers
// separate "parse bytes" from "act on parsed result".
package manifest

import "github.com/s0t/drwebmirror/internal/digest"

// Op is the action a manifest entry requests.
type Op int

const (
	// AddOrUpdate means the entry's file must exist locally and match
	// its digest (manifest prefixes '+', '=', '!', or Android file_op
	// 0x0).
	AddOrUpdate Op = iota
	// Delete means any local file matching the entry must be removed
	// (manifest prefix '-', or Android file_op 0x2).
	Delete
)

// Entry is one parsed manifest record, normalized across dialects.
type Entry struct {
	Op Op

	// RelPath is relative to the mirror root, '/'-separated, with any
	// <platform> prefix, %VAR%\... directory component, and |args
	// suffix already stripped (§4.5 "Path extraction rules").
	RelPath string

	// Digest is the primary expected digest, already normalized to the
	// hasher's own textual form (lowercase; CRC32 leading zeros
	// stripped).
	Digest string

	HasSize bool
	Size    int64

	// HasLZMADigest/LZMADigest/HasLZMASize/LZMASize are v5.2-only
	// fields describing the optional inline LZMA sha256+size pair
	// (distinct from the sibling-file LZMA policy every v4/v5/v5.2
	// entry also gets via Dialect.HasLZMASibling).
	HasLZMADigest bool
	LZMADigest    string
	HasLZMASize   bool
	LZMASize      int64

	// IsXMLChild is set only by the v7 dialect's parse (at any nesting
	// level) to mark a <xml name=".../> entry (versus a <lzma .../> entry): the
	// engine must fetch and recursively parse it as a nested manifest.
	IsXMLChild bool
}

// Dialect is the capability set the sync engine is written once
// against (§9). Each of the five wire formats implements it.
type Dialect interface {
	// Name identifies the dialect for logging ("v4", "v5", "v5.2",
	// "v7", "android").
	Name() string
	// PrimaryDigest is the hash kind used for Entry.Digest.
	PrimaryDigest() digest.Type
	// MainFile is the manifest's own path relative to the mirror root.
	MainFile() string
	// SiblingFiles returns the dialect's fixed best-effort fetch list,
	// downloaded once after MainFile succeeds and before entries are
	// applied (§"SUPPLEMENTED FEATURES: Dialect-specific optional
	// sibling files"). Each is tolerated on failure.
	SiblingFiles() []string
	// HasLZMASibling reports whether every AddOrUpdate entry implies an
	// optional "<path>.lzma" sibling verified under the same digest
	// (true for v4/v5/v5.2; false for v7 and Android, which have no
	// such blanket convention).
	HasLZMASibling() bool
	// LZMADigest is the hash kind used to verify a dialect's ".lzma"
	// sibling file (meaningful only when HasLZMASibling is true): CRC32
	// over the decompressed stream for v4, SHA-256 over it for v5/v5.2.
	LZMADigest() digest.Type
	// ParseEntries parses the manifest's raw bytes into an ordered
	// entry list.
	ParseEntries(data []byte) ([]Entry, error)
}
