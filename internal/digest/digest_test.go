package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHashFileCRC32(t *testing.T) {
	path := writeTemp(t, []byte("hello world"))
	got, err := HashFile(CRC32, path)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestHashFileMD5(t *testing.T) {
	path := writeTemp(t, []byte("hello world"))
	got, err := HashFile(MD5, path)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
}

func TestHashFileSHA256(t *testing.T) {
	path := writeTemp(t, []byte("hello world"))
	got, err := HashFile(SHA256, path)
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestNormalizeCRC32StripsLeadingZeros(t *testing.T) {
	assert.Equal(t, "abcd", NormalizeCRC32("0000ABCD"))
	assert.Equal(t, "a1b2c3d4", NormalizeCRC32("A1B2C3D4"))
	assert.Equal(t, "0", NormalizeCRC32("00000000"))
}

func TestEqualCRC32IgnoresPadding(t *testing.T) {
	assert.True(t, Equal(CRC32, "0000ABCD", "0000abcd"))
	assert.True(t, Equal(CRC32, "ABCD", "0000abcd"))
}

func TestEqualMD5IsCaseInsensitive(t *testing.T) {
	assert.True(t, Equal(MD5, "5EB63BBBE01EEED093CB22BB8F5ACDC3", "5eb63bbbe01eeed093cb22bb8f5acdc3"))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "crc32", CRC32.String())
	assert.Equal(t, "sha256-lzma", SHA256LZMA.String())
}
