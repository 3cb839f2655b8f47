package engine

import (
	"fmt"
	"os"
	"path/filepath"
	pathpkg "path"

	"github.com/s0t/drwebmirror/internal/cache"
	"github.com/s0t/drwebmirror/internal/digest"
	"github.com/s0t/drwebmirror/internal/fserrors"
	"github.com/s0t/drwebmirror/internal/fsutil"
	"github.com/s0t/drwebmirror/internal/gate"
	"github.com/s0t/drwebmirror/internal/manifest"
)

// runAndroid drives the Android INI dialect (§4.5 "Android operation
// codes"). Grounded on updateA/cacheA: the configured manifest path
// names the single remote/local manifest file itself (one level under
// the real mirror directory, §"SUPPLEMENTED FEATURES: Android
// directory derivation"), not a directory, so the real directory is
// derived by trimming its last path component before any entry is
// touched.
func (e *Engine) runAndroid() error {
	dialect := manifest.Android{}

	manifestPath := e.cfg.ManifestPath
	if manifestPath == "" {
		manifestPath = e.cfg.RemoteDir
	}
	realDir := androidRealDir(e.cfg)
	localManifest := manifestPath
	remoteManifest := filepath.ToSlash(manifestPath)

	fastModeAvailable := e.cfg.FastMode
	var priorDigest string
	var priorSize int64 = -1
	var idx *cache.Index
	if fastModeAvailable {
		if d, err := digest.HashFile(digest.SHA256, localManifest); err == nil {
			priorDigest = d
			priorSize = fsutil.Size(localManifest)
			idx = e.buildAndroidIndex(dialect, localManifest, realDir)
		} else {
			fastModeAvailable = false
			e.log.Warnf("%s was not found, fast mode has been disabled", filepath.Base(manifestPath))
		}
	}

	return e.withRetry(func(fastMode bool, attempt int) (passResult, error) {
		fastMode = fastMode && fastModeAvailable

		if err := e.downloadWithRetry(remoteManifest, localManifest); err != nil {
			return 0, fmt.Errorf("manifest %s: %w", remoteManifest, err)
		}

		if fastMode && fsutil.Size(localManifest) == priorSize {
			if newDigest, err := digest.HashFile(digest.SHA256, localManifest); err == nil && newDigest == priorDigest {
				e.log.Info("Nothing was changed")
				return passDone, nil
			}
		}

		data, err := os.ReadFile(localManifest)
		if err != nil {
			return 0, fserrors.Fatal(err, "reading manifest")
		}
		entries, err := dialect.ParseEntries(data)
		if err != nil {
			return 0, fserrors.Fatal(err, "parsing manifest")
		}

		g := gate.New(dialect.PrimaryDigest(), fastMode, idx, e.fetch(), e.cfg.MaxRepeat, e.cfg.RepeatSleep, e.log)

		for _, entry := range entries {
			if entry.Op == manifest.Delete {
				if fsutil.Exists(filepath.Join(realDir, entry.RelPath)) {
					e.log.Infof("Deleting %s", entry.RelPath)
				}
				_ = fsutil.DeleteFiles(realDir, entry.RelPath)
				continue
			}

			localPath := filepath.Join(realDir, entry.RelPath)
			remotePath := pathpkg.Join(filepath.ToSlash(realDir), entry.RelPath)

			outcome := g.Verify(remotePath, localPath, entry.Digest, remotePath)
			if restart, err := e.handleOutcome(outcome, remotePath, attempt); restart || err != nil {
				return restartOrErr(restart, err)
			}
			if entry.HasSize && !gate.VerifySize(localPath, entry.Size, true) {
				if attempt < e.cfg.MaxRepeat {
					return passRestart, nil
				}
				return 0, fmt.Errorf("size mismatch for %s after %d attempts", remotePath, attempt)
			}
		}

		return passDone, nil
	})
}

// buildAndroidIndex builds the fast-mode index from the prior run's
// on-disk manifest (§4.4).
func (e *Engine) buildAndroidIndex(dialect manifest.Android, localManifest, realDir string) *cache.Index {
	data, err := os.ReadFile(localManifest)
	if err != nil {
		return nil
	}
	entries, err := dialect.ParseEntries(data)
	if err != nil {
		return nil
	}
	b := cache.NewBuilder()
	for _, entry := range entries {
		if entry.Op != manifest.AddOrUpdate {
			continue
		}
		b.Insert(filepath.Join(realDir, entry.RelPath), entry.Digest)
	}
	return b.Build()
}
