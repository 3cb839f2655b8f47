// Package digest implements the four digest kinds the mirror protocol
// dialects use to verify downloaded files: CRC32, MD5, SHA-256, and
// SHA-256 taken over the LZMA-decompressed contents of a file.
//
// Each hasher is a pure function of a path, mirroring the crc32sum/
// md5sum/sha256sum/sha256sum_lzma functions of the original client:
// they are treated as external collaborators (spec §1) and implemented
// directly against the standard library and, for LZMA, a streaming
// decoder so the decompressed content is never fully materialized.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"
)

// Type identifies one of the supported digest algorithms.
type Type int

// Supported digest kinds. CRC32LZMA supplements §4.2's four-kind list:
// drwebmirror.c's v4 path calls crc32sum_lzma (not sha256sum_lzma) on a
// file's .lzma sibling, matching §3's "an .lzma sibling of each file
// uses the same CRC32 over the decompressed contents" data-model note.
const (
	CRC32 Type = iota
	MD5
	SHA256
	SHA256LZMA
	CRC32LZMA
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case CRC32:
		return "crc32"
	case MD5:
		return "md5"
	case SHA256:
		return "sha256"
	case SHA256LZMA:
		return "sha256-lzma"
	case CRC32LZMA:
		return "crc32-lzma"
	default:
		return "unknown"
	}
}

// Func computes the lowercase hex digest of the file at path.
type Func func(path string) (string, error)

// HashFile computes t's digest of the file at path.
func HashFile(t Type, path string) (string, error) {
	switch t {
	case CRC32:
		return crc32File(path)
	case MD5:
		return md5File(path)
	case SHA256:
		return sha256File(path)
	case SHA256LZMA:
		return SHA256LZMAFile(path)
	case CRC32LZMA:
		return CRC32LZMAFile(path)
	default:
		return "", fmt.Errorf("digest: unknown type %d", t)
	}
}

func crc32File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeCRC32 strips leading zeros from a manifest-supplied CRC32
// hex field, matching drwebmirror.c's cache4/update4: "0000ABCD" is
// stored and compared as "abcd". An all-zero field normalizes to "0".
func NormalizeCRC32(hexDigest string) string {
	s := strings.ToLower(hexDigest)
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// Normalize lowercases a manifest-supplied hex digest for the given
// kind. CRC32 additionally has its leading zeros stripped to match the
// hasher's own unpadded representation (§4.2).
func Normalize(t Type, hexDigest string) string {
	if t == CRC32 || t == CRC32LZMA {
		return NormalizeCRC32(hexDigest)
	}
	return strings.ToLower(hexDigest)
}

// Equal compares a manifest digest against a freshly computed one,
// applying the same normalization rules as Normalize.
func Equal(t Type, manifestDigest, computedDigest string) bool {
	return Normalize(t, manifestDigest) == Normalize(t, computedDigest)
}
