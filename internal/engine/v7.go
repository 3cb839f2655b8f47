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

// maxV7Depth bounds the versions.xml -> *.xml -> ... recursion so a
// malformed or cyclic manifest can't loop forever; the protocol itself
// only ever nests two levels deep (§8 scenario 3).
const maxV7Depth = 8

// runV7 drives the nested XML dialect (§4.5 "v7 nesting"): the
// top-level versions.xml lists <xml> child manifests and <lzma> leaf
// files; each <xml> child is fetched, verified, and recursively parsed
// for further entries. Grounded on update7/cache7.
func (e *Engine) runV7() error {
	dialect := manifest.V7{}
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
			idx = e.buildV7Index(dialect, localMain)
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

		data, err := os.ReadFile(localMain)
		if err != nil {
			return 0, fserrors.Fatal(err, "reading "+mainFile)
		}
		entries, err := dialect.ParseEntries(data)
		if err != nil {
			return 0, fserrors.Fatal(err, "parsing "+mainFile)
		}

		restart, err := e.processV7Entries(dialect, entries, e.cfg.RemoteDir, "", idx, fastMode, attempt, 0)
		if err != nil {
			return 0, err
		}
		if restart {
			return passRestart, nil
		}
		return passDone, nil
	})
}

// processV7Entries verifies one level of v7 entries (the top-level
// versions.xml, or one already-verified *.xml child), recursing into
// every <xml> child it encounters. localDir/remoteDir are the
// directories entry.RelPath is relative to at this level.
func (e *Engine) processV7Entries(dialect manifest.V7, entries []manifest.Entry, localDir, remoteDir string, idx *cache.Index, fastMode bool, attempt, depth int) (restart bool, err error) {
	g := gate.New(dialect.PrimaryDigest(), fastMode, idx, e.fetch(), e.cfg.MaxRepeat, e.cfg.RepeatSleep, e.log)

	for _, entry := range entries {
		if entry.Op == manifest.Delete {
			_ = fsutil.DeleteFiles(localDir, filepath.Base(filepath.FromSlash(entry.RelPath)))
			continue
		}

		localPath := filepath.Join(localDir, filepath.FromSlash(entry.RelPath))
		remotePath := pathpkg.Join(remoteDir, entry.RelPath)

		// v7 entries may live under nested subdirectories the mirror
		// root doesn't yet contain (§"SUPPLEMENTED FEATURES: v7
		// recursive directory creation"), unlike the flat dialects.
		if err := fsutil.MakePathFor(localPath, os.FileMode(e.cfg.ModeDir)); err != nil {
			return false, fserrors.Fatal(err, "creating directory for "+localPath)
		}

		outcome := g.Verify(remotePath, localPath, entry.Digest, remotePath)
		if r, err := e.handleOutcome(outcome, remotePath, attempt); r || err != nil {
			return r, err
		}
		if entry.HasSize && !gate.VerifySize(localPath, entry.Size, true) {
			if attempt < e.cfg.MaxRepeat {
				return true, nil
			}
			return false, fmt.Errorf("size mismatch for %s after %d attempts", remotePath, attempt)
		}

		if !entry.IsXMLChild {
			continue
		}
		if depth >= maxV7Depth {
			return false, fmt.Errorf("v7 manifest nesting exceeds %d levels at %s", maxV7Depth, remotePath)
		}

		childData, err := os.ReadFile(localPath)
		if err != nil {
			return false, fserrors.Fatal(err, "reading "+localPath)
		}
		childEntries, err := dialect.ParseEntries(childData)
		if err != nil {
			return false, fserrors.Fatal(err, "parsing "+localPath)
		}

		childLocalDir := filepath.Dir(localPath)
		childRemoteDir := pathpkg.Dir(remotePath)
		r, err := e.processV7Entries(dialect, childEntries, childLocalDir, childRemoteDir, idx, fastMode, attempt, depth+1)
		if r || err != nil {
			return r, err
		}
	}
	return false, nil
}

// buildV7Index builds the fast-mode index from the prior pass's
// top-level versions.xml plus, one-shot, every nested *.xml child that
// already exists on disk (§"SUPPLEMENTED FEATURES: v7 one-shot
// second-level cache population"): built exactly once, before the
// retry loop starts, and never re-derived per attempt. Only the first
// attempt consults it: withRetry turns fast mode off after a restart.
func (e *Engine) buildV7Index(dialect manifest.V7, localMain string) *cache.Index {
	b := cache.NewBuilder()
	e.populateV7Index(dialect, localMain, e.cfg.RemoteDir, b, 0)
	return b.Build()
}

func (e *Engine) populateV7Index(dialect manifest.V7, localManifestPath, localDir string, b *cache.Builder, depth int) {
	data, err := os.ReadFile(localManifestPath)
	if err != nil {
		return
	}
	entries, err := dialect.ParseEntries(data)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.Op != manifest.AddOrUpdate {
			continue
		}
		local := filepath.Join(localDir, filepath.FromSlash(entry.RelPath))
		b.Insert(local, entry.Digest)
		if entry.IsXMLChild && depth < maxV7Depth && fsutil.Exists(local) {
			e.populateV7Index(dialect, local, filepath.Dir(local), b, depth+1)
		}
	}
}
