package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/s0t/drwebmirror/internal/digest"
)

// V4 is the flat CRC32 dialect (drweb32.lst), grounded on cache4/
// update4's shared parsing block in drwebmirror.c.
type V4 struct{}

func (V4) Name() string               { return "v4" }
func (V4) PrimaryDigest() digest.Type { return digest.CRC32 }
func (V4) MainFile() string           { return "drweb32.lst" }
func (V4) HasLZMASibling() bool       { return true }
func (V4) LZMADigest() digest.Type    { return digest.CRC32LZMA }

// SiblingFiles is update4's fixed best-effort fetch list issued right
// after drweb32.lst succeeds.
func (V4) SiblingFiles() []string {
	return []string{
		"drweb32.lst.lzma",
		"version.lst",
		"version.lst.lzma",
		"drweb32.flg",
		"drweb32.flg.lzma",
	}
}

// ParseEntries implements the scan in update4/cache4: one line per
// record, '+'/'='/'!' add-or-update, '-' delete, everything else
// ignored (§7 "v4/v5/v5.2 continue past unrecognized lines").
func (V4) ParseEntries(data []byte) ([]Entry, error) {
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
			crcField, _ := splitCSVField(rest)
			if crcField == "" {
				return nil, fmt.Errorf("v4 manifest line %d: missing CRC32 field", lineNo)
			}
			entries = append(entries, Entry{
				Op:      AddOrUpdate,
				RelPath: path,
				Digest:  digest.NormalizeCRC32(crcField),
			})
		case '-':
			path := line[1:]
			if comma := strings.IndexByte(path, ','); comma >= 0 {
				path = path[:comma]
			}
			entries = append(entries, Entry{Op: Delete, RelPath: path})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("v4 manifest: %w", err)
	}
	return entries, nil
}
