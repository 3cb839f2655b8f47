package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/s0t/drwebmirror/internal/digest"
)

// Android is the INI-like mobile dialect: a "[Files]" section holds
// one comma-separated record per line, field 2 a hex file_op (0x0 add/
// update, 0x2 delete), field 3 a hex size, field 4 an MD5, field 7 the
// relative path. Grounded on cacheA/updateA.
type Android struct{}

func (Android) Name() string               { return "android" }
func (Android) PrimaryDigest() digest.Type { return digest.MD5 }

// MainFile is unused for Android: the manifest *is* the single file at
// remotedir (§"SUPPLEMENTED FEATURES: Android directory derivation"),
// so the engine derives both the manifest path and the real mirror
// directory from the same configured path rather than joining
// MainFile onto a directory.
func (Android) MainFile() string       { return "" }
func (Android) HasLZMASibling() bool   { return false }
func (Android) LZMADigest() digest.Type { return digest.MD5 }
func (Android) SiblingFiles() []string { return nil }

// minRecordLen is updateA/cacheA's terminator check ("strlen(buf) <
// 84") for the end of the [Files] section.
const minRecordLen = 84

// ParseEntries implements cacheA/updateA's scan: skip to "[Files]",
// then parse fixed-position comma fields from each record line until a
// new "[section]" or an under-length line ends the section.
func (Android) ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	inFiles := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if !inFiles {
			if strings.HasPrefix(line, "[Files]") {
				inFiles = true
			}
			continue
		}
		if strings.HasPrefix(line, "[") || len(line) < minRecordLen {
			break
		}

		fields := strings.Split(line, ",")
		if len(fields) < 7 {
			return nil, fmt.Errorf("android manifest line %d: expected 7 fields, got %d", lineNo, len(fields))
		}

		opField := strings.TrimSpace(fields[1])
		fileOp, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(opField), "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("android manifest line %d: invalid file_op %q: %w", lineNo, opField, err)
		}
		md5Field := strings.ToLower(strings.TrimSpace(fields[3]))
		pathField := strings.TrimSpace(fields[6])

		switch fileOp {
		case 0x0:
			sizeField := strings.TrimSpace(fields[2])
			size, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(sizeField), "0x"), 16, 64)
			if err != nil {
				return nil, fmt.Errorf("android manifest line %d: invalid size %q: %w", lineNo, sizeField, err)
			}
			entries = append(entries, Entry{
				Op:      AddOrUpdate,
				RelPath: pathField,
				Digest:  md5Field,
				HasSize: true,
				Size:    size,
			})
		case 0x2:
			entries = append(entries, Entry{Op: Delete, RelPath: pathField})
		default:
			return nil, fmt.Errorf("android manifest line %d: unknown file operation %#x for file %s", lineNo, fileOp, pathField)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("android manifest: %w", err)
	}
	return entries, nil
}
