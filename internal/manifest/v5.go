package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/s0t/drwebmirror/internal/digest"
)

// V5 is the flat SHA-256 dialect (version.lst), with an optional
// declared size field. Grounded on cache5/update5x_internal.
type V5 struct{}

func (V5) Name() string               { return "v5" }
func (V5) PrimaryDigest() digest.Type { return digest.SHA256 }
func (V5) MainFile() string           { return "version.lst" }
func (V5) HasLZMASibling() bool       { return true }
func (V5) LZMADigest() digest.Type    { return digest.SHA256LZMA }
func (V5) SiblingFiles() []string     { return siblingsFor("version.lst") }
func (V5) ParseEntries(data []byte) ([]Entry, error) {
	return parse5x(data, "v5", false)
}

// V52 is v5 plus an optional inline LZMA sha256+size pair
// (version2.lst). Grounded on the same update5x_internal, entered with
// version_file == "version2.lst".
type V52 struct{}

func (V52) Name() string               { return "v5.2" }
func (V52) PrimaryDigest() digest.Type { return digest.SHA256 }
func (V52) MainFile() string           { return "version2.lst" }
func (V52) HasLZMASibling() bool       { return true }
func (V52) LZMADigest() digest.Type    { return digest.SHA256LZMA }
func (V52) SiblingFiles() []string     { return siblingsFor("version2.lst") }
func (V52) ParseEntries(data []byte) ([]Entry, error) {
	return parse5x(data, "v5.2", true)
}

// siblingsFor is update5x_internal's fixed sibling list: the
// dialect's own .lzma form, drweb32.flg(.lzma), and — only when the
// main file isn't already "version.lst" — version.lst(.lzma) too.
func siblingsFor(mainFile string) []string {
	files := []string{
		mainFile + ".lzma",
		"drweb32.flg",
		"drweb32.flg.lzma",
	}
	if mainFile != "version.lst" {
		files = append(files, "version.lst", "version.lst.lzma")
	}
	return files
}

// parse5x implements update5x_internal's per-line scan. The §9 open
// question about the original's fixed-width "tmp += sizeof(sha_base)
// - 1" advance is resolved here by locating each comma explicitly
// instead, which tolerates any amount of whitespace around fields.
func parse5x(data []byte, dialectName string, withLZMA bool) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		switch line[0] {
		case '+', '=', '!':
			path, rest := extractPath(line[1:])

			shaField, rest := splitCSVField(rest)
			if shaField == "" {
				return nil, fmt.Errorf("%s manifest line %d: missing SHA256 field", dialectName, lineNo)
			}
			e := Entry{
				Op:      AddOrUpdate,
				RelPath: path,
				Digest:  strings.ToLower(shaField),
			}

			if rest != "" {
				sizeField, rest2 := splitCSVField(rest)
				if n, err := strconv.ParseInt(sizeField, 10, 64); err == nil {
					e.HasSize = true
					e.Size = n
				}
				if withLZMA && rest2 != "" {
					lzmaShaField, rest3 := splitCSVField(rest2)
					if lzmaShaField != "" {
						e.HasLZMADigest = true
						e.LZMADigest = strings.ToLower(lzmaShaField)
					}
					if rest3 != "" {
						lzmaSizeField, _ := splitCSVField(rest3)
						if n, err := strconv.ParseInt(lzmaSizeField, 10, 64); err == nil {
							e.HasLZMASize = true
							e.LZMASize = n
						}
					}
				}
			}

			entries = append(entries, e)
		case '-':
			path := line[1:]
			if comma := strings.IndexByte(path, ','); comma >= 0 {
				path = path[:comma]
			}
			entries = append(entries, Entry{Op: Delete, RelPath: path})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s manifest: %w", dialectName, err)
	}
	return entries, nil
}
