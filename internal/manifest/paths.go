package manifest

import "strings"

// extractPath applies the v4/v5/v5.2 path-extraction rules (§4.5) to
// the body of an entry line, after the leading op character has
// already been stripped: drop a leading "<platform>" marker, keep only
// the basename after the last backslash of a "%VAR%\...\name.ext"
// component, and strip a trailing "|args" suffix. It also splits the
// path off at the first ',': rest is the remainder of the line after
// that comma ("" if there is none).
func extractPath(body string) (path string, rest string) {
	if gt := strings.IndexByte(body, '>'); gt >= 0 {
		body = body[gt+1:]
	}
	if bs := strings.LastIndexByte(body, '\\'); bs >= 0 {
		body = body[bs+1:]
	}

	comma := strings.IndexByte(body, ',')
	if comma < 0 {
		path, rest = body, ""
	} else {
		path, rest = body[:comma], body[comma+1:]
	}

	if pipe := strings.IndexByte(path, '|'); pipe >= 0 {
		path = path[:pipe]
	}
	return path, rest
}

// splitCSVField returns the next comma-separated field of s trimmed of
// leading spaces, and the remainder starting after that field's comma
// (or "" if none). Mirrors the original's "do tmp++; while(*tmp==' ')"
// pattern used throughout drwebmirror.c's manifest scanners.
func splitCSVField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " ")
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:comma]), s[comma+1:]
}
