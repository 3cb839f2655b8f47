package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0t/drwebmirror/internal/config"
	"github.com/s0t/drwebmirror/internal/fserrors"
	"github.com/s0t/drwebmirror/internal/transport"
)

func crc32Hex(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fakeGetter serves GETs from an in-memory map of remote path ->
// content, so engine tests exercise the retry/restart state machine
// and dialect wiring without opening a real socket.
type fakeGetter struct {
	files     map[string][]byte
	notFound  map[string]bool
	getCount  int
	failNext  map[string]int // remaining failures before success
	closed    bool
}

func newFakeGetter() *fakeGetter {
	return &fakeGetter{
		files:    make(map[string][]byte),
		notFound: make(map[string]bool),
		failNext: make(map[string]int),
	}
}

func (f *fakeGetter) Get(path, destPath string) (transport.Result, error) {
	f.getCount++
	if n := f.failNext[path]; n > 0 {
		f.failNext[path] = n - 1
		return transport.Result{}, fserrors.Retriable(fmt.Errorf("GET %s: transient failure", path), "GET "+path)
	}
	if f.notFound[path] {
		return transport.Result{}, fserrors.ErrNotFound
	}
	data, ok := f.files[path]
	if !ok {
		return transport.Result{}, fmt.Errorf("GET %s: no such fixture", path)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return transport.Result{}, err
	}
	return transport.Result{Outcome: transport.OutcomeSuccess}, nil
}

func (f *fakeGetter) Close() { f.closed = true }

func testConfig(t *testing.T, dialect config.Dialect) *config.Config {
	cfg := config.New()
	cfg.RemoteDir = t.TempDir()
	cfg.Dialect = dialect
	cfg.RepeatSleep = time.Millisecond
	cfg.MaxRepeat = 2
	return cfg
}

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRunFlatV4Minimal(t *testing.T) {
	cfg := testConfig(t, config.DialectV4)
	fg := newFakeGetter()
	body := []byte("hello world")
	crc := crc32Hex(body)
	fg.files["drweb32.lst"] = []byte(fmt.Sprintf("+drwebbase.vdb, %s\r\n", crc))
	fg.files["drwebbase.vdb"] = body
	fg.notFound["drweb32.lst.lzma"] = true
	fg.notFound["version.lst"] = true
	fg.notFound["version.lst.lzma"] = true
	fg.notFound["drweb32.flg"] = true
	fg.notFound["drweb32.flg.lzma"] = true
	fg.notFound["drwebbase.vdb.lzma"] = true

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(cfg.RemoteDir, "drwebbase.vdb"))
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.True(t, fg.closed)
}

func TestRunFlatRetriesTransientFetchFailure(t *testing.T) {
	cfg := testConfig(t, config.DialectV4)
	fg := newFakeGetter()
	body := []byte("hello world")
	crc := crc32Hex(body)
	fg.files["drweb32.lst"] = []byte(fmt.Sprintf("+drwebbase.vdb, %s\r\n", crc))
	fg.files["drwebbase.vdb"] = body
	fg.failNext["drwebbase.vdb"] = 2 // no more than cfg.MaxRepeat retries
	fg.notFound["drweb32.lst.lzma"] = true
	fg.notFound["version.lst"] = true
	fg.notFound["version.lst.lzma"] = true
	fg.notFound["drweb32.flg"] = true
	fg.notFound["drweb32.flg.lzma"] = true
	fg.notFound["drwebbase.vdb.lzma"] = true

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(cfg.RemoteDir, "drwebbase.vdb"))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestRunFlatSizeMismatchExhaustsRetries(t *testing.T) {
	cfg := testConfig(t, config.DialectV5)
	cfg.FastMode = false
	fg := newFakeGetter()
	body := []byte("0123456789abcdef")
	sha := sha256Hex(body)
	fg.files["version.lst"] = []byte(fmt.Sprintf("=agent.exe, %s, 4096\r\n", sha))
	fg.files["agent.exe"] = body
	fg.notFound["version.lst.lzma"] = true
	fg.notFound["drweb32.flg"] = true
	fg.notFound["drweb32.flg.lzma"] = true
	fg.notFound["agent.exe.lzma"] = true

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.Error(t, err)
}

func TestRunFlatNothingChangedSkipsEntryVerification(t *testing.T) {
	cfg := testConfig(t, config.DialectV4)
	body := []byte("hello world")
	crc := crc32Hex(body)
	manifestBytes := []byte(fmt.Sprintf("+drwebbase.vdb, %s\r\n", crc))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.RemoteDir, "drweb32.lst"), manifestBytes, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RemoteDir, "drwebbase.vdb"), body, 0o644))

	fg := newFakeGetter()
	fg.files["drweb32.lst"] = manifestBytes
	fg.notFound["drweb32.lst.lzma"] = true
	fg.notFound["version.lst"] = true
	fg.notFound["version.lst.lzma"] = true
	fg.notFound["drweb32.flg"] = true
	fg.notFound["drweb32.flg.lzma"] = true

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, fg.getCount, "only the manifest itself should be fetched")
}

func TestRunV7Nested(t *testing.T) {
	cfg := testConfig(t, config.DialectV7)
	cfg.FastMode = false

	leaf := []byte("nested leaf contents")
	leafSHA := sha256Hex(leaf)
	childXML := fmt.Sprintf(`<lzma name="leaf.bin" hash="%s"/>`, leafSHA) + "\n"
	top := []byte(fmt.Sprintf(`<xml name="sub/child.xml" hash="%s"/>`, sha256Hex([]byte(childXML))) + "\n")

	fg := newFakeGetter()
	fg.files["versions.xml"] = top
	fg.files["sub/child.xml"] = []byte(childXML)
	fg.files["sub/leaf.bin"] = leaf

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(cfg.RemoteDir, "sub", "leaf.bin"))
	require.NoError(t, err)
	assert.Equal(t, leaf, got)
}

func TestRunAndroidDelete(t *testing.T) {
	cfg := testConfig(t, config.DialectAndroid)
	cfg.FastMode = false
	manifestRemote := filepath.Join(cfg.RemoteDir, "android", "manifest.ini")
	cfg.ManifestPath = manifestRemote
	realDir := filepath.Dir(manifestRemote)
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(realDir, "old.vdb"), []byte("stale"), 0o644))

	record := "deadbeef, 0x2, 0x0, 00000000000000000000000000000000, x, x, old.vdb" // 32-char md5 placeholder
	for len(record) < 84 {
		record += " "
	}
	manifest := []byte("[Files]\r\n" + record + "\r\n")

	fg := newFakeGetter()
	fg.files[filepath.ToSlash(manifestRemote)] = manifest

	e := newWithTransport(cfg, fg, discardLog())
	err := e.Run()
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(realDir, "old.vdb"))
}
