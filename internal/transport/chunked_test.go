package transport

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyChunkedSingleChunk(t *testing.T) {
	raw := "5\r\nhello\r\n0\r\n\r\n"
	var out bytes.Buffer
	n, err := copyChunked(&out, bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "hello", out.String())
}

func TestCopyChunkedMultipleChunks(t *testing.T) {
	raw := "3\r\nfoo\r\n3\r\nbar\r\n0\r\n\r\n"
	var out bytes.Buffer
	n, err := copyChunked(&out, bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.Equal(t, "foobar", out.String())
}

func TestCopyChunkedWithExtensionAndTrailer(t *testing.T) {
	raw := "3;ext=1\r\nfoo\r\n0\r\nX-Trailer: ignored\r\n\r\n"
	var out bytes.Buffer
	n, err := copyChunked(&out, bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, "foo", out.String())
}

func TestCopyChunkedInvalidSize(t *testing.T) {
	raw := "zz\r\nfoo\r\n"
	var out bytes.Buffer
	_, err := copyChunked(&out, bufio.NewReader(strings.NewReader(raw)))
	assert.Error(t, err)
}

func TestCopyChunkedTruncated(t *testing.T) {
	raw := "10\r\nfoo"
	var out bytes.Buffer
	_, err := copyChunked(&out, bufio.NewReader(strings.NewReader(raw)))
	assert.Error(t, err)
}
