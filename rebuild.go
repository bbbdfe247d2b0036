// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// rebuildWriterBufferSize is buffered writer size for the new blob.
const rebuildWriterBufferSize = 1 << 20

// blobWriter tracks length of the blob being written.
type blobWriter struct {
	w *bufio.Writer
	n int64
}

// Write implements io.Writer.
func (b *blobWriter) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	b.n += int64(n)
	return n, err
}

// pad writes zero bytes up to the next alignment boundary.
func (b *blobWriter) pad() error {
	rem := b.n % blobAlignment
	if rem == 0 {
		return nil
	}

	var zeros [blobAlignment]byte
	_, err := b.Write(zeros[:blobAlignment-rem])
	return err
}

// needsPadding applies the alignment rule and its format quirks: the first
// payload after a short patch header starts at offset 4, and compressed
// payloads carried over into a patch blob are never aligned.
func needsPadding(length int64, level uint8, carriedCompressed bool) bool {
	if length%blobAlignment == 0 {
		return false
	}
	if level > 0 && length == patchBlobHeader {
		return false
	}
	if level > 0 && carriedCompressed {
		return false
	}

	return true
}

// Rebuild writes a new blob for the current patch level to dstBlobPath and
// saves the updated directory. Entries stored in other blobs stay untouched
// unless the replacement folder provides their content. Files in the folder
// that match no entry are appended, and fileIds.txt overrides IDs.
//
// Replacement names are compared case-insensitively, so of two folder files
// differing only in case the first in walk order wins and the other is skipped.
//
// dstBlobPath must not be one of the chain blobs; write to a temporary path
// and swap it in after success. The cached handle of the current level blob is
// released on success, so reads through x after the swap see the new blob.
// On failure the temporary blob is removed and the in-memory and on-disk
// directory are left unchanged.
func (x *Index) Rebuild(dstBlobPath string, opts RebuildOptions) (*RebuildResult, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}
	if x.cfg.readOnly {
		return nil, ErrReadOnly
	}

	opts.applyDefaults()
	if err := x.checkRebuildTarget(dstBlobPath); err != nil {
		return nil, err
	}

	folder, err := scanReplacementFolder(opts.ReplaceFrom, opts.Exclude, opts.ExcludeMatcherOptions, x.cfg.logger)
	if err != nil {
		return nil, err
	}

	if err := removeIfExists(dstBlobPath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(dstBlobPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create blob: %w", err)
	}

	entries, res, err := x.writeBlob(f, folder, opts)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close blob: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(dstBlobPath)
		return nil, err
	}

	previous := x.entries
	x.entries = entries
	if err := x.Save(); err != nil {
		x.entries = previous
		_ = os.Remove(dstBlobPath)
		return nil, fmt.Errorf("save index: %w", err)
	}

	// Entries now describe the new blob; drop the handle to the old one.
	if err := x.blobs.forget(x.patchLevel); err != nil {
		x.cfg.logger.Warn("close replaced blob", slog.String("path", x.blobs.path(x.patchLevel)), slog.Any("error", err))
	}

	return res, nil
}

// writeBlob streams header and payloads into f and returns the updated entry sequence.
func (x *Index) writeBlob(f io.Writer, folder *replacementFolder, opts RebuildOptions) ([]Entry, *RebuildResult, error) {
	level := x.patchLevel
	bw := &blobWriter{w: bufio.NewWriterSize(f, rebuildWriterBufferSize)}
	res := &RebuildResult{}
	buf := make([]byte, x.cfg.copyBufferSize)

	if _, err := bw.Write(blobHeader(x.version, level)); err != nil {
		return nil, nil, fmt.Errorf("write blob header: %w", err)
	}

	entries := slices.Clone(x.entries)
	for i := range entries {
		e := &entries[i]
		repl := folder.lookup(e)
		replacing := repl != nil

		if e.PatchFileNumber != level && !replacing {
			res.Inherited++
			continue
		}

		if needsPadding(bw.n, level, e.IsCompressed() && !replacing) {
			if err := bw.pad(); err != nil {
				return nil, nil, fmt.Errorf("pad before %s: %w", e.Name(), err)
			}
		}

		if e.Size <= 0 && e.CompressedSize <= 0 {
			if level > 0 {
				e.Offset = 0
			} else {
				e.Offset = bw.n
			}

			continue
		}

		offset := bw.n
		var written int64
		if replacing {
			n, err := copyFileInto(bw, repl.absPath, buf)
			if err != nil {
				return nil, nil, err
			}

			repl.consumed = true
			e.Size = int32(n) //nolint:gosec // bounded by copyFileInto
			e.CompressedSize = e.Size
			e.PatchFileNumber = level
			written = n
			res.Replaced++
		} else {
			compressed := e.IsCompressed()
			inflate := compressed && !opts.KeepCompressed
			n, err := x.CopyEntryData(*e, bw, inflate)
			switch {
			case errors.Is(err, ErrBlobUnavailable):
				x.cfg.logger.Warn("entry payload unavailable", slog.String("name", e.Name()), slog.Any("error", err))
				res.Unavailable++
				e.Size = 0
			case err != nil:
				return nil, nil, err
			}
			if n > maxEntrySize {
				return nil, nil, fmt.Errorf("%w: %s", ErrSizeOverflow, e.Name())
			}

			e.CompressedSize = int32(n)
			if inflate || !compressed {
				e.Size = e.CompressedSize
			}
			written = n
		}

		e.Offset = offset
		res.Written++
		x.cfg.logger.Debug("entry written",
			slog.String("name", e.Name()),
			slog.Int64("offset", offset),
			slog.Int64("size", written),
			slog.Bool("replaced", replacing))
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(RebuildEntryProgress{Name: e.Name(), Offset: offset, Written: written, Replaced: replacing})
		}
	}

	for _, file := range folder.pending() {
		name, fileType := SplitTypedName(file.rel)
		if needsPadding(bw.n, level, false) {
			if err := bw.pad(); err != nil {
				return nil, nil, fmt.Errorf("pad before %s: %w", name, err)
			}
		}

		offset := bw.n
		n, err := copyFileInto(bw, file.absPath, buf)
		if err != nil {
			return nil, nil, err
		}

		file.consumed = true
		entries = append(entries, Entry{
			ID:              int32(len(entries)), //nolint:gosec // entry count is bounded on save
			FileType:        fileType,
			AuxName:         name,
			FullName:        name,
			Offset:          offset,
			Size:            int32(n), //nolint:gosec // bounded by copyFileInto
			CompressedSize:  int32(n), //nolint:gosec // bounded by copyFileInto
			PatchFileNumber: level,
		})
		res.Added++
		res.Written++
		x.cfg.logger.Debug("entry added", slog.String("name", name), slog.String("type", fileType), slog.Int64("offset", offset))
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(RebuildEntryProgress{Name: name, Offset: offset, Written: n, Added: true})
		}
	}

	if folder.manifest != "" {
		applied, skipped, err := applyManifestFile(entries, folder.manifest, x.cfg.logger)
		if err != nil {
			return nil, nil, err
		}

		res.IDOverrides = applied
		res.ManifestWarnings = skipped
	}

	if err := bw.w.Flush(); err != nil {
		return nil, nil, fmt.Errorf("flush blob: %w", err)
	}

	res.BlobSize = bw.n
	return entries, res, nil
}

// checkRebuildTarget rejects destinations that alias a blob of this chain.
func (x *Index) checkRebuildTarget(dstBlobPath string) error {
	if strings.TrimSpace(dstBlobPath) == "" {
		return errors.New("empty destination blob path")
	}

	dstAbs, err := filepath.Abs(dstBlobPath)
	if err != nil {
		return fmt.Errorf("resolve destination blob: %w", err)
	}

	for p := 0; p <= maxPatchLevel; p++ {
		if samePath(x.blobs.path(uint8(p)), dstAbs) { //nolint:gosec // bounded loop
			return fmt.Errorf("destination %s is chain blob %d; write to a temporary path", dstBlobPath, p)
		}
	}

	return nil
}

// copyFileInto appends the whole file at path to dst.
func copyFileInto(dst io.Writer, path string, buf []byte) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open replacement: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat replacement: %w", err)
	}
	if info.Size() > maxEntrySize {
		return 0, fmt.Errorf("%w: %s is %d bytes", ErrSizeOverflow, path, info.Size())
	}

	n, err := copyAtMost(dst, f, info.Size(), buf)
	if err != nil {
		return n, fmt.Errorf("copy replacement %s: %w", path, err)
	}
	if n != info.Size() {
		return n, fmt.Errorf("copy replacement %s: short read (%d/%d)", path, n, info.Size())
	}

	return n, nil
}
