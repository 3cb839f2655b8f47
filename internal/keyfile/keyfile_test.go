package keyfile

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drweb32.key")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadExtractsUserIDAndMD5(t *testing.T) {
	content := "[Key]\r\nLicense = Yes\r\n[User]\r\nNumber = 1234-567890-ABCDEF\r\nEOF\r\n"
	path := writeKeyfile(t, content)

	info, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "1234-567890-ABCDEF", info.UserID)

	sum := md5.Sum([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), info.MD5)
}

func TestReadMissingUserSection(t *testing.T) {
	path := writeKeyfile(t, "[Key]\r\nLicense = Yes\r\n")
	_, err := Read(path)
	assert.Error(t, err)
}

func TestReadMissingNumberField(t *testing.T) {
	path := writeKeyfile(t, "[User]\r\nOther = 1\r\n")
	_, err := Read(path)
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.key"))
	assert.Error(t, err)
}
