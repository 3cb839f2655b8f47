// Package fsutil implements the filesystem collaborators the spec
// treats as external: recursive directory creation, glob-style file
// deletion, mtime preservation, and scratch-file creation. Grounded on
// filesystem.c (make_path/make_path_for/delete_files/set_mtime/
// fopen_temp), reshaped from its manual path-splicing into path/filepath
// and filepath.Match globbing, the way rclone's lib/file wraps
// stdlib os/filepath calls behind small named helpers.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MakePath recursively creates dir and every parent under it, mirroring
// make_path's component-by-component mkdir (so each level gets its own
// mode-fixup chmod, not just the leaf).
func MakePath(dir string, mode os.FileMode) error {
	if dir == "" || dir == "." {
		return nil
	}
	clean := filepath.Clean(dir)
	parts := strings.Split(clean, string(filepath.Separator))
	var curr string
	if filepath.IsAbs(clean) {
		curr = string(filepath.Separator)
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if curr == "" || curr == string(filepath.Separator) {
			curr = curr + part
		} else {
			curr = curr + string(filepath.Separator) + part
		}
		if err := makeDir(curr, mode); err != nil {
			return err
		}
	}
	return nil
}

// MakePathFor ensures the parent directory of filename exists, per
// make_path_for (used by v7's per-entry nested directory creation).
func MakePathFor(filename string, mode os.FileMode) error {
	dir := filepath.Dir(filename)
	if dir == "." || dir == "" {
		return nil
	}
	return MakePath(dir, mode)
}

func makeDir(dir string, mode os.FileMode) error {
	info, err := os.Stat(dir)
	if err != nil {
		if err := os.Mkdir(dir, mode); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		return os.Chmod(dir, mode)
	}
	if !info.IsDir() {
		return fmt.Errorf("mkdir %s: not a directory", dir)
	}
	return os.Chmod(dir, mode)
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns path's size in bytes, or -1 if it cannot be stat'd.
func Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// DeleteFiles removes every entry of dir matching mask, a glob pattern
// using only '*' and '?' (delete_files' hand-rolled matcher, here
// delegated to filepath.Match which implements the same two wildcards
// plus character classes — a strict superset, never narrower than the
// original for the masks this protocol actually emits: a bare
// filename or filename+".lzma").
func DeleteFiles(dir, mask string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("no such directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		matched, err := filepath.Match(mask, entry.Name())
		if err != nil {
			return fmt.Errorf("bad mask %q: %w", mask, err)
		}
		if matched {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("delete %s/%s: %w", dir, entry.Name(), err)
			}
		}
	}
	return nil
}

// SetMTime sets path's modification time to mtime, matching set_mtime.
// Access time is not separately preserved: os.FileInfo exposes no
// portable atime accessor across GOOS without platform-specific
// syscall.Stat_t handling, so Chtimes receives mtime for both
// arguments.
func SetMTime(path string, mtime time.Time) error {
	if !Exists(path) {
		return fmt.Errorf("stat %s: no such file", path)
	}
	return os.Chtimes(path, mtime, mtime)
}

// TempFilePath returns a scratch file path under the OS temp directory,
// falling back to the TEMP/TMP environment variables the way
// fopen_temp's cygwin branch does when tmpfile() is unavailable, named
// with a uuid rather than tmpnam() for collision-free uniqueness.
func TempFilePath(prefix string) string {
	dir := os.TempDir()
	if dir == "" || dir == "/tmp" {
		if v := os.Getenv("TEMP"); v != "" {
			dir = v
		} else if v := os.Getenv("TMP"); v != "" {
			dir = v
		}
	}
	name := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	return filepath.Join(dir, name)
}
