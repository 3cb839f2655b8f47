package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/ulikunitz/xz/lzma"
)

// SHA256LZMAFile computes the SHA-256 digest of the LZMA-decompressed
// contents of the file at path, without ever materializing the
// decompressed bytes in memory: the decoder is piped directly into a
// rolling hash (spec §9, "LZMA hashing").
func SHA256LZMAFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := lzma.NewReader(f)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CRC32LZMAFile computes the CRC32 digest of the LZMA-decompressed
// contents of the file at path, the same streaming-decoder shape as
// SHA256LZMAFile (grounded on drwebmirror.c's crc32sum_lzma, the v4
// dialect's counterpart to v5's sha256sum_lzma).
func CRC32LZMAFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r, err := lzma.NewReader(f)
	if err != nil {
		return "", err
	}

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}
