package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/s0t/drwebmirror/internal/digest"
)

// V7 is the nested XML-ish dialect: a top-level versions.xml lists
// <xml .../> child manifests and <lzma .../> leaf files; each <xml>
// child is itself fetched and parsed for further <lzma> entries.
// Grounded on cache7/update7. Unlike the flat dialects, v7 has no
// generic ".lzma sibling of every file" convention — HasLZMASibling is
// false, and nested files are modeled as their own entries instead.
type V7 struct{}

func (V7) Name() string               { return "v7" }
func (V7) PrimaryDigest() digest.Type { return digest.SHA256 }
func (V7) MainFile() string           { return "versions.xml" }
func (V7) HasLZMASibling() bool       { return false }
func (V7) LZMADigest() digest.Type    { return digest.SHA256 }

// SiblingFiles mirrors update7's commented-out "(WTF???)" optional
// fetch block: the original author left repodb.xml/revisions.xml
// disabled by default, so there is nothing to fetch here.
func (V7) SiblingFiles() []string { return nil }

// ParseEntries parses one level of a v7 manifest (either the top-level
// versions.xml or a child *.xml file): every line containing "<xml"
// or "<lzma" yields one Entry with its name="..." attribute as
// RelPath (relative to the directory the manifest itself lives in —
// the caller joins it), hash="..." as Digest, and an optional
// size="...".
func (V7) ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		isXML := strings.Contains(line, "<xml")
		isLZMA := strings.Contains(line, "<lzma")
		if !isXML && !isLZMA {
			continue
		}

		name, ok := xmlAttr(line, "name")
		if !ok {
			return nil, fmt.Errorf("v7 manifest line %d: missing name attribute", lineNo)
		}
		hash, ok := xmlAttr(line, "hash")
		if !ok {
			return nil, fmt.Errorf("v7 manifest line %d: missing hash attribute", lineNo)
		}

		e := Entry{
			Op:         AddOrUpdate,
			RelPath:    name,
			Digest:     strings.ToLower(hash),
			IsXMLChild: isXML,
		}
		if size, ok := xmlAttr(line, "size"); ok {
			if n, err := strconv.ParseInt(size, 10, 64); err == nil {
				e.HasSize = true
				e.Size = n
			}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("v7 manifest: %w", err)
	}
	return entries, nil
}

// xmlAttr extracts the quoted value of attr="..." from line, the way
// cache7/update7 locate it via strstr(buf, "hash=\"") + 6 followed by
// the closing quote.
func xmlAttr(line, attr string) (string, bool) {
	marker := attr + "=\""
	idx := strings.Index(line, marker)
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
