// Package keyfile reads the Dr.Web license keyfile the spec treats as
// an external collaborator (§6): only its two outputs are consumed,
// the UserID found under the "[User]" section's "Number" field and the
// MD5 digest of the keyfile's own bytes. Grounded line-for-line on
// drwebmirror.c's parse_keyfile, a plain two-pass line scan rather than
// a general INI parser — the file format has exactly one section and
// one field the client cares about, so pulling in a full INI library
// (not already part of the teacher's dependency stack) would be
// justified by nothing this client actually does with it.
package keyfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/s0t/drwebmirror/internal/digest"
)

// Info carries the two values the rest of the client consumes:
// UserID (the X-DrWeb-KeyNumber header value) and MD5 (the
// X-DrWeb-Validate header value, the keyfile's own MD5 digest).
type Info struct {
	UserID string
	MD5    string
}

// Read parses the keyfile at path, matching parse_keyfile's two scans:
// find the "[User]" section header, then find the first subsequent
// line containing "Number", splitting it on '=' to get the value.
func Read(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening keyfile %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)

	foundUser := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "[User]" {
			foundUser = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Info{}, fmt.Errorf("reading keyfile %s: %w", path, err)
	}
	if !foundUser {
		return Info{}, fmt.Errorf("keyfile %s: unexpected EOF looking for [User]", path)
	}

	numberLine := ""
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.Contains(line, "Number") {
			numberLine = line
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Info{}, fmt.Errorf("reading keyfile %s: %w", path, err)
	}
	if numberLine == "" {
		return Info{}, fmt.Errorf("keyfile %s: unexpected EOF looking for Number field", path)
	}

	eq := strings.IndexByte(numberLine, '=')
	if eq < 0 {
		return Info{}, fmt.Errorf("keyfile %s: Number field has no '='", path)
	}
	userID := strings.TrimSpace(numberLine[eq+1:])

	md5sum, err := digest.HashFile(digest.MD5, path)
	if err != nil {
		return Info{}, fmt.Errorf("hashing keyfile %s: %w", path, err)
	}

	return Info{UserID: userID, MD5: md5sum}, nil
}
