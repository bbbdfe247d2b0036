// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tempBlobSuffix is appended to a blob path while its replacement is written.
const tempBlobSuffix = "_tmp"

// Repack rebuilds the current patch level of indexPath from its blob chain and
// the optional replaceFrom folder, then swaps the new blob into place.
func Repack(indexPath string, replaceFrom string, opts EditOptions) (*RebuildResult, error) {
	opts.applyDefaults()

	x, err := Open(strings.TrimSpace(indexPath), opts.Options...)
	if err != nil {
		return nil, err
	}

	return commitRebuild(x, opts, replaceFrom)
}

// DeleteEntries removes the first entry matching each name and rebuilds the
// current patch level. Names without a match are reported in Missing. When
// nothing matched, neither blob nor index is touched.
func DeleteEntries(indexPath string, names []string, opts EditOptions) (*DeleteResult, error) {
	opts.applyDefaults()
	for _, name := range names {
		if NormalizeName(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, name)
		}
	}

	x, err := Open(strings.TrimSpace(indexPath), opts.Options...)
	if err != nil {
		return nil, err
	}

	deleted, missing := x.Delete(names...)
	res := &DeleteResult{Deleted: deleted, Missing: missing}
	if deleted == 0 {
		if err := x.Close(); err != nil {
			return nil, err
		}

		return res, nil
	}

	opts.Inflate = false
	rebuild, err := commitRebuild(x, opts, "")
	if err != nil {
		return nil, err
	}

	res.Rebuild = rebuild
	return res, nil
}

// CreatePatch adds a patch level on top of latestIndexPath. The latest
// directory is copied to the new .pindex, every file in contentFolder is
// written to the new .patch blob, and untouched entries keep pointing at
// their earlier blobs. An existing pair at the target level is overwritten.
func CreatePatch(latestIndexPath string, contentFolder string, opts EditOptions) (*PatchResult, error) {
	opts.applyDefaults()
	latestIndexPath = strings.TrimSpace(latestIndexPath)

	latest, err := Open(latestIndexPath, opts.Options...)
	if err != nil {
		return nil, err
	}

	level := latest.PatchLevel()
	if err := latest.Close(); err != nil {
		return nil, err
	}

	next := opts.PatchLevel
	if next == 0 {
		if level >= maxPatchLevel {
			return nil, fmt.Errorf("%w: %s is at level %d", ErrPatchLevelOverflow, latestIndexPath, level)
		}

		next = level + 1
	}
	if next <= level {
		return nil, fmt.Errorf("patch level %d is not above %s level %d", next, latestIndexPath, level)
	}

	patchIndex := PatchIndexPath(latestIndexPath, next)
	if samePath(patchIndex, latestIndexPath) {
		return nil, fmt.Errorf("patch level %d would overwrite %s", next, latestIndexPath)
	}
	if err := copyFile(latestIndexPath, patchIndex); err != nil {
		return nil, err
	}

	x, err := Open(patchIndex, opts.Options...)
	if err != nil {
		_ = os.Remove(patchIndex)
		return nil, err
	}

	if err := x.SetPatchLevel(next); err != nil {
		_ = x.Close()
		_ = os.Remove(patchIndex)
		return nil, err
	}

	opts.Inflate = false
	rebuild, err := commitRebuild(x, opts, contentFolder)
	if err != nil {
		_ = os.Remove(patchIndex)
		return nil, err
	}

	return &PatchResult{
		Rebuild:    rebuild,
		IndexPath:  patchIndex,
		BlobPath:   BlobPath(patchIndex, next),
		PatchLevel: next,
	}, nil
}

// commitRebuild rebuilds the current level of x into a temporary blob, closes x
// and swaps the temporary blob over the real one. x is always closed. On failure
// the previous blob and directory bytes are restored.
func commitRebuild(x *Index, opts EditOptions, replaceFrom string) (*RebuildResult, error) {
	blobPath := x.BlobPath(x.PatchLevel())
	tmpPath := blobPath + tempBlobSuffix
	indexPath := x.Path()

	snapshot, err := os.ReadFile(indexPath)
	if err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("snapshot index: %w", err)
	}

	res, err := x.Rebuild(tmpPath, opts.rebuildOptions(replaceFrom))
	if closeErr := x.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close index: %w", closeErr)
		_ = os.Remove(tmpPath)
		if restoreErr := restoreIndex(indexPath, snapshot); restoreErr != nil {
			err = fmt.Errorf("%w (restore failed: %w)", err, restoreErr)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := swapBlob(blobPath, tmpPath, opts.BackupKeep); err != nil {
		_ = os.Remove(tmpPath)
		if restoreErr := restoreIndex(indexPath, snapshot); restoreErr != nil {
			return nil, fmt.Errorf("%w (restore failed: %w)", err, restoreErr)
		}

		return nil, err
	}

	return res, nil
}

// swapBlob moves tmpPath over blobPath keeping backup generations per keep.
func swapBlob(blobPath string, tmpPath string, keep int) error {
	backupPath := blobPath + ".bak"
	if err := prepareBackupSlot(backupPath, keep); err != nil {
		return err
	}

	hadBlob, err := exists(blobPath)
	if err != nil {
		return err
	}

	if hadBlob {
		if err := os.Rename(blobPath, backupPath); err != nil {
			return fmt.Errorf("move blob to backup: %w", err)
		}
	}

	if err := os.Rename(tmpPath, blobPath); err != nil {
		err = fmt.Errorf("move new blob into place: %w", err)
		if hadBlob {
			if rollbackErr := rollbackFromBackup(blobPath, backupPath); rollbackErr != nil {
				return fmt.Errorf("%w (rollback failed: %w)", err, rollbackErr)
			}
		}

		return err
	}

	if hadBlob && keep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return fmt.Errorf("remove backup: %w", err)
		}
	}

	return nil
}

// restoreIndex writes saved directory bytes back to path.
func restoreIndex(path string, snapshot []byte) error {
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		return fmt.Errorf("restore index: %w", err)
	}

	return nil
}

// copyFile copies src to dst, replacing dst.
func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}

	return out.Close()
}

// samePath reports whether a and b resolve to the same absolute path.
func samePath(a string, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// exists reports whether path exists.
func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("stat %s: %w", path, err)
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	ok, err := exists(from)
	if err != nil || !ok {
		return err
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
