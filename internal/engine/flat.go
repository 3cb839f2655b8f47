package engine

import (
	"fmt"
	"os"

	"github.com/s0t/drwebmirror/internal/cache"
	"github.com/s0t/drwebmirror/internal/digest"
	"github.com/s0t/drwebmirror/internal/fserrors"
	"github.com/s0t/drwebmirror/internal/fsutil"
	"github.com/s0t/drwebmirror/internal/gate"
	"github.com/s0t/drwebmirror/internal/manifest"
)

// runFlat drives the v4/v5/v5.2 sync loop (§4.5's shared skeleton):
// fetch the dialect's main manifest, short-circuit on an unchanged
// fast-mode digest, fetch the dialect's optional sibling files, then
// verify every entry (plus its ".lzma" sibling, where the dialect
// carries that convention).
func (e *Engine) runFlat(dialect manifest.Dialect) error {
	mainFile := dialect.MainFile()
	localMain := e.localPath(mainFile)

	fastModeAvailable := e.cfg.FastMode
	var priorDigest string
	var priorSize int64 = -1
	var idx *cache.Index
	if fastModeAvailable {
		if d, err := digest.HashFile(digest.SHA256, localMain); err == nil {
			priorDigest = d
			priorSize = fsutil.Size(localMain)
			idx = e.buildFlatIndex(dialect, localMain)
		} else {
			fastModeAvailable = false
			e.log.Warnf("%s was not found, fast mode has been disabled", mainFile)
		}
	}

	return e.withRetry(func(fastMode bool, attempt int) (passResult, error) {
		fastMode = fastMode && fastModeAvailable

		if err := e.downloadWithRetry(mainFile, localMain); err != nil {
			return 0, fmt.Errorf("manifest %s: %w", mainFile, err)
		}

		if fastMode && fsutil.Size(localMain) == priorSize {
			if newDigest, err := digest.HashFile(digest.SHA256, localMain); err == nil && newDigest == priorDigest {
				e.log.Info("Nothing was changed")
				return passDone, nil
			}
		}

		for _, sib := range dialect.SiblingFiles() {
			if err := e.downloadWithRetry(sib, e.localPath(sib)); err != nil {
				e.log.WithError(err).Debugf("optional sibling fetch failed: %s", sib)
			}
		}

		data, err := os.ReadFile(localMain)
		if err != nil {
			return 0, fserrors.Fatal(err, "reading "+mainFile)
		}
		entries, err := dialect.ParseEntries(data)
		if err != nil {
			return 0, fserrors.Fatal(err, "parsing "+mainFile)
		}

		g := gate.New(dialect.PrimaryDigest(), fastMode, idx, e.fetch(), e.cfg.MaxRepeat, e.cfg.RepeatSleep, e.log)
		lzmaG := gate.New(dialect.LZMADigest(), fastMode, idx, e.fetch(), e.cfg.MaxRepeat, e.cfg.RepeatSleep, e.log)

		for _, entry := range entries {
			if entry.Op == manifest.Delete {
				e.deleteFlatEntry(dialect, entry)
				continue
			}

			localPath := e.localPath(entry.RelPath)
			outcome := g.Verify(entry.RelPath, localPath, entry.Digest, entry.RelPath)
			if restart, err := e.handleOutcome(outcome, entry.RelPath, attempt); restart || err != nil {
				return restartOrErr(restart, err)
			}
			if entry.HasSize && !gate.VerifySize(localPath, entry.Size, true) {
				if attempt < e.cfg.MaxRepeat {
					return passRestart, nil
				}
				return 0, fmt.Errorf("size mismatch for %s after %d attempts", entry.RelPath, attempt)
			}

			if !dialect.HasLZMASibling() {
				continue
			}
			lzmaExpected := entry.Digest
			if entry.HasLZMADigest {
				lzmaExpected = entry.LZMADigest
			}
			lzmaRemote := entry.RelPath + ".lzma"
			lzmaLocal := localPath + ".lzma"
			lzmaOutcome := lzmaG.Verify(lzmaRemote, lzmaLocal, lzmaExpected, lzmaRemote)
			switch lzmaOutcome {
			case gate.NotFound:
				if fsutil.Exists(lzmaLocal) {
					e.log.Infof("Deleting... %s", lzmaRemote)
					_ = fsutil.DeleteFiles(e.cfg.RemoteDir, entry.RelPath+".lzma")
				}
			default:
				if restart, err := e.handleOutcome(lzmaOutcome, lzmaRemote, attempt); restart || err != nil {
					return restartOrErr(restart, err)
				}
				if entry.HasLZMASize && !gate.VerifySize(lzmaLocal, entry.LZMASize, true) {
					if attempt < e.cfg.MaxRepeat {
						return passRestart, nil
					}
					return 0, fmt.Errorf("size mismatch for %s after %d attempts", lzmaRemote, attempt)
				}
			}
		}

		return passDone, nil
	})
}

// handleOutcome classifies a gate.Outcome that isn't already handled by
// the caller (Exist/Downloaded/NotFound-for-lzma): TryAgain restarts
// the pass if attempts remain, NotFound and Failed abort it.
func (e *Engine) handleOutcome(outcome gate.Outcome, label string, attempt int) (restart bool, err error) {
	switch outcome {
	case gate.TryAgain:
		if attempt < e.cfg.MaxRepeat {
			return true, nil
		}
		return false, fmt.Errorf("digest mismatch for %s after %d attempts", label, attempt)
	case gate.Failed:
		return false, fmt.Errorf("downloading %s failed", label)
	case gate.NotFound:
		return false, fmt.Errorf("required file %s not found on server", label)
	default:
		return false, nil
	}
}

func restartOrErr(restart bool, err error) (passResult, error) {
	if err != nil {
		return 0, err
	}
	return passRestart, nil
}

// deleteFlatEntry removes a DELETE entry's file (and, for dialects with
// the blanket .lzma sibling convention, its compressed form) from the
// mirror root.
func (e *Engine) deleteFlatEntry(dialect manifest.Dialect, entry manifest.Entry) {
	if fsutil.Exists(e.localPath(entry.RelPath)) {
		e.log.Infof("Deleting... %s", entry.RelPath)
	}
	_ = fsutil.DeleteFiles(e.cfg.RemoteDir, entry.RelPath)
	if dialect.HasLZMASibling() {
		_ = fsutil.DeleteFiles(e.cfg.RemoteDir, entry.RelPath+".lzma")
	}
}

// buildFlatIndex builds the fast-mode IntegrityIndex from the prior
// run's on-disk manifest (§4.4): every ADD_OR_UPDATE entry's local path
// and its ".lzma" sibling are inserted under the same digest, since
// for v4/v5/v5.2 that digest describes the shared decompressed
// content.
func (e *Engine) buildFlatIndex(dialect manifest.Dialect, localMain string) *cache.Index {
	data, err := os.ReadFile(localMain)
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
		b.InsertWithLZMASibling(e.localPath(entry.RelPath), entry.Digest)
	}
	return b.Build()
}
