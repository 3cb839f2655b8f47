// Package engine implements the retry state machine and per-dialect
// sync loop (§4.5, §4.6): fetch-manifest, parse-entries, apply each
// entry's add/update or delete, restarting the whole pass on digest or
// size mismatch up to a bounded count and disabling fast-mode after
// the first restart. Grounded on drwebmirror.c's update4/update5x_
// internal/update7/updateA, reshaped from their labelled-goto restart
// into the explicit attempt loop described in §9's "goto restart"
// design note.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s0t/drwebmirror/internal/config"
	"github.com/s0t/drwebmirror/internal/fserrors"
	"github.com/s0t/drwebmirror/internal/fsutil"
	"github.com/s0t/drwebmirror/internal/gate"
	"github.com/s0t/drwebmirror/internal/lockfile"
	"github.com/s0t/drwebmirror/internal/manifest"
	"github.com/s0t/drwebmirror/internal/transport"
)

// getter is the subset of *transport.Transport the engine depends on,
// so tests can substitute an in-memory fake instead of opening a real
// socket (cf. rclone's fstest fakes for its remote backends).
type getter interface {
	Get(path, destPath string) (transport.Result, error)
	Close()
}

// passResult is the outcome of one attempt at a sync pass, feeding the
// §4.6 retry state machine.
type passResult int

const (
	passDone passResult = iota
	passRestart
)

// Engine drives one sync pass for the dialect selected by cfg.Dialect.
type Engine struct {
	cfg *config.Config
	tr  getter
	log *logrus.Entry
}

// New builds an Engine with a real transport bound to cfg.
func New(cfg *config.Config, log *logrus.Entry) *Engine {
	log = componentLog(log)
	return &Engine{cfg: cfg, tr: transport.New(cfg, log), log: log}
}

// newWithTransport is used by tests to inject a fake getter.
func newWithTransport(cfg *config.Config, tr getter, log *logrus.Entry) *Engine {
	return &Engine{cfg: cfg, tr: tr, log: componentLog(log)}
}

func componentLog(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return log.WithField("component", "engine")
}

// Run acquires the target-directory lock, ensures it exists, and runs
// the sync loop for cfg.Dialect.
func (e *Engine) Run() error {
	dir := e.cfg.RemoteDir
	if e.cfg.Dialect == config.DialectAndroid {
		dir = androidRealDir(e.cfg)
	}

	if err := fsutil.MakePath(dir, os.FileMode(e.cfg.ModeDir)); err != nil {
		return fmt.Errorf("can't access local directory: %w", err)
	}
	lock, err := lockfile.Acquire(dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			e.log.WithError(err).Warn("releasing lock file")
		}
	}()
	defer e.tr.Close()

	switch e.cfg.Dialect {
	case config.DialectV4:
		return e.runFlat(manifest.V4{})
	case config.DialectV5:
		return e.runFlat(manifest.V5{})
	case config.DialectV52:
		return e.runFlat(manifest.V52{})
	case config.DialectV7:
		return e.runV7()
	case config.DialectAndroid:
		return e.runAndroid()
	default:
		return fmt.Errorf("engine: unknown dialect %v", e.cfg.Dialect)
	}
}

// withRetry drives the §4.6 state machine: run is invoked once per
// attempt with the fast-mode flag for that attempt (disabled for every
// attempt after the first, per "any restart disables fast-mode for the
// remainder of the pass") and the zero-based attempt/restart counter.
// run itself decides, using attempt and cfg.MaxRepeat, whether a
// mismatch should produce passRestart or a terminal error — mirroring
// the original's "if(status == TRY_AGAIN && counter_global < MAX_REPEAT)
// ... else return EXIT_FAILURE" branch at every mismatch site.
func (e *Engine) withRetry(run func(fastMode bool, attempt int) (passResult, error)) error {
	fastMode := e.cfg.FastMode
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			fastMode = false
		}
		result, err := run(fastMode, attempt)
		if err != nil {
			return err
		}
		if result == passDone {
			return nil
		}
		e.log.Warnf("fast mode has been disabled after restart %d", attempt+1)
		time.Sleep(e.cfg.RepeatSleep)
	}
}

// download fetches remotePath to destPath and applies the server's
// Last-Modified as the file's mtime. The transport reports the
// timestamp already shifted by cfg.TZShift (it applies the shift while
// parsing the header); applying it to the filesystem is the engine's job, the
// way update()/download() in drwebmirror.c call set_mtime right after
// conn_get returns.
func (e *Engine) download(remotePath, destPath string) error {
	res, err := e.tr.Get(remotePath, destPath)
	if err != nil {
		return err
	}
	if res.HasLastMod {
		if err := fsutil.SetMTime(destPath, res.LastModified); err != nil {
			e.log.WithError(err).Warn("could not set file mtime")
		}
	}
	return nil
}

// fetch adapts download to gate.Fetcher.
func (e *Engine) fetch() gate.Fetcher {
	return e.download
}

// downloadWithRetry wraps download in its own bounded, sleeping retry
// loop for the manifest and sibling-file fetches, which go straight to
// the transport rather than through a Gate: a retriable failure sleeps
// cfg.RepeatSleep and retries up to cfg.MaxRepeat times, the same
// counter network.c's download() keeps locally on every call — never
// the engine's pass-wide restart count.
func (e *Engine) downloadWithRetry(remotePath, destPath string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = e.download(remotePath, destPath)
		if err == nil || !fserrors.ShouldRetry(err) || attempt >= e.cfg.MaxRepeat {
			return err
		}
		e.log.WithError(err).Warnf("download failed, retrying (%d/%d): %s", attempt+1, e.cfg.MaxRepeat, remotePath)
		time.Sleep(e.cfg.RepeatSleep)
	}
}

// localPath joins relPath (forward-slash separated, as it appears in a
// manifest) onto the configured mirror root using OS-native
// separators.
func (e *Engine) localPath(relPath string) string {
	return filepath.Join(e.cfg.RemoteDir, filepath.FromSlash(relPath))
}

// androidRealDir derives the real local/remote mirror directory for
// Android mode (§"SUPPLEMENTED FEATURES: Android directory
// derivation"): the configured path names the manifest file itself,
// one level under the mirror root, so the directory is everything
// before its last path component.
func androidRealDir(cfg *config.Config) string {
	manifestPath := cfg.ManifestPath
	if manifestPath == "" {
		manifestPath = cfg.RemoteDir
	}
	return filepath.Dir(manifestPath)
}
