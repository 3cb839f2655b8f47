// Package gate implements the download-and-verify decision point
// (§4.3): given a local path and the digest the manifest expects there,
// decide whether the file already satisfies it, download it if not,
// and classify the outcome for the engine's retry state machine.
// Grounded on drwebmirror.c's update_file/get_and_verify and on
// rclone's backend/hasher (per-object digest caching combined with a
// backing remote) for the Go shape of "consult a cache, fall back to
// recomputing, fall back to fetching".
package gate

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s0t/drwebmirror/internal/cache"
	"github.com/s0t/drwebmirror/internal/digest"
	"github.com/s0t/drwebmirror/internal/fserrors"
)

// Outcome is the result of Verify.
type Outcome int

const (
	// Exist means the local file already matches expected_digest (either
	// via the fast-mode cache or a fresh recompute).
	Exist Outcome = iota
	// Downloaded means the file did not match and was fetched and
	// re-verified successfully.
	Downloaded
	// NotFound means the transport reported 404 for this path.
	NotFound
	// TryAgain means the downloaded file's digest still does not match;
	// the caller should restart the whole manifest pass.
	TryAgain
	// Failed means a non-retriable transport or filesystem error
	// occurred; the caller should abort the pass.
	Failed
)

// String renders the outcome's name. Verify's own log lines use
// separate labels ("[OK]", "[LIKELY]" for a fast-mode cache hit,
// "[NOT OK]", "[NOT FOUND]").
func (o Outcome) String() string {
	switch o {
	case Exist:
		return "EXIST"
	case Downloaded:
		return "DOWNLOADED"
	case NotFound:
		return "NOT_FOUND"
	case TryAgain:
		return "TRY_AGAIN"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Fetcher downloads remotePath to destPath. It is a plain function
// value rather than an interface so the engine can adapt
// transport.Transport.Get (which also returns mtime information the
// gate doesn't need) with a one-line closure, and so gate tests can
// substitute a fake without spinning up a real socket.
type Fetcher func(remotePath, destPath string) error

// Gate combines a digest kind, the fast-mode cache, and a fetch
// callback into the single decision in §4.3.
type Gate struct {
	Kind     digest.Type
	FastMode bool
	Index    *cache.Index
	Fetch    Fetcher

	// MaxRetries/RetryDelay bound the local retry loop Verify runs
	// around a single retriable fetch failure (§4.1, §7; grounded on
	// network.c's download(), whose own counter sleeps REPEAT_SLEEP and
	// retries up to MAX_REPEAT times before ever returning a terminal
	// status) — a loop distinct from, and nested inside, the engine's
	// pass-wide restart counter.
	MaxRetries int
	RetryDelay time.Duration

	Log *logrus.Entry
}

// New builds a Gate. log may be nil, in which case a disabled entry is
// used (no log lines emitted).
func New(kind digest.Type, fastMode bool, idx *cache.Index, fetch Fetcher, maxRetries int, retryDelay time.Duration, log *logrus.Entry) *Gate {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &Gate{Kind: kind, FastMode: fastMode, Index: idx, Fetch: fetch, MaxRetries: maxRetries, RetryDelay: retryDelay, Log: log}
}

// fetchWithRetry calls Fetch once, then keeps retrying after a
// RetryDelay sleep for as long as the failure is classified retriable
// and fewer than MaxRetries attempts have been spent — download()'s own
// counter, not the engine's pass-wide restart count. A not-found or
// non-retriable error returns immediately.
func (g *Gate) fetchWithRetry(remotePath, localPath, label string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = g.Fetch(remotePath, localPath)
		if err == nil || fserrors.IsNotFound(err) {
			return err
		}
		if !fserrors.ShouldRetry(err) || attempt >= g.MaxRetries {
			return err
		}
		g.Log.WithError(err).Warnf("download failed, retrying (%d/%d): %s", attempt+1, g.MaxRetries, label)
		time.Sleep(g.RetryDelay)
	}
}

// Verify runs the §4.3 sequence for one (localPath, remotePath,
// expectedDigest) triple: fast-mode cache check, on-disk recompute,
// download-and-reverify.
func (g *Gate) Verify(remotePath, localPath, expectedDigest, label string) Outcome {
	if exists(localPath) {
		if g.FastMode && g.Index != nil {
			if cached, ok := g.Index.Lookup(localPath); ok {
				if digest.Equal(g.Kind, expectedDigest, cached) {
					g.Log.Infof("[LIKELY] %s", label)
					return Exist
				}
			}
		}
		if computed, err := digest.HashFile(g.Kind, localPath); err == nil {
			if digest.Equal(g.Kind, expectedDigest, computed) {
				g.Log.Infof("[OK] %s", label)
				return Exist
			}
		}
	}

	if err := g.fetchWithRetry(remotePath, localPath, label); err != nil {
		if fserrors.IsNotFound(err) {
			g.Log.Warnf("[NOT FOUND] %s", label)
			return NotFound
		}
		g.Log.WithError(err).Errorf("download failed: %s", label)
		return Failed
	}

	computed, err := digest.HashFile(g.Kind, localPath)
	if err != nil {
		g.Log.WithError(err).Errorf("hashing downloaded file failed: %s", label)
		return Failed
	}
	if !digest.Equal(g.Kind, expectedDigest, computed) {
		g.Log.Warnf("[NOT OK] %s (digest mismatch after download)", label)
		return TryAgain
	}
	g.Log.Infof("[OK] %s", label)
	return Downloaded
}

// VerifySize checks an on-disk size assertion after a successful
// Verify, per §4.5 ("if declared_size is set and on-disk size !=
// declared_size: treat as TRY_AGAIN"). ok is false (and the pass must
// restart) on mismatch or a stat failure.
func VerifySize(localPath string, declaredSize int64, hasDeclaredSize bool) (ok bool) {
	if !hasDeclaredSize {
		return true
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return false
	}
	return info.Size() == declaredSize
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
