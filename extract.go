// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Extract writes entry payloads under dstDir. Each entry lands at its name
// plus a ";type" suffix when the type is not "file". Compressed entries are
// inflated unless Raw is set. Empty entries, entries the filter drops and
// entries whose blob is unavailable are skipped. A fileIds.txt with one
// `name=id` line per extracted entry is written unless SkipManifest is set.
func (x *Index) Extract(dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	opts.applyDefaults()
	matcher, err := newNameMatcher(opts.Filter, opts.FilterMatcherOptions)
	if err != nil {
		return nil, err
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	res := &ExtractResult{}
	extracted := make([]Entry, 0, len(x.entries))
	for i := range x.entries {
		e := x.entries[i]
		if e.IsEmpty() || !matcher.included(e.Name()) {
			res.Skipped++
			continue
		}

		relPath, err := normalizeExtractEntryPath(e.TypedName())
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Name(), err)
		}

		outPath := filepath.Join(dstRootAbs, filepath.FromSlash(relPath))
		written, err := x.extractEntry(e, outPath, !opts.Raw)
		if errors.Is(err, ErrBlobUnavailable) {
			x.cfg.logger.Warn("skip entry", slog.String("name", e.Name()), slog.Any("error", err))
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}

		res.Extracted++
		res.Bytes += written
		extracted = append(extracted, e)
		x.cfg.logger.Debug("entry extracted",
			slog.String("name", e.Name()),
			slog.Int("id", int(e.ID)),
			slog.String("type", e.FileType),
			slog.Int64("size", written))
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(e, written, outPath)
		}
	}

	if !opts.SkipManifest && len(extracted) > 0 {
		manifestPath := filepath.Join(dstRootAbs, ManifestName)
		if err := writeManifest(manifestPath, extracted); err != nil {
			return nil, err
		}

		res.ManifestPath = manifestPath
	}

	return res, nil
}

// extractEntry writes one entry payload to outPath. Unreachable blobs are
// detected before the output file is created.
func (x *Index) extractEntry(e Entry, outPath string, decompress bool) (int64, error) {
	if _, ok := x.blobs.get(e.PatchFileNumber); !ok {
		return 0, fmt.Errorf("%w: %s needs %s", ErrBlobUnavailable, e.Name(), x.blobs.path(e.PatchFileNumber))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return 0, fmt.Errorf("create output directory for %s: %w", e.Name(), err)
	}

	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", outPath, err)
	}

	written, copyErr := x.CopyEntryData(e, file, decompress)
	closeErr := file.Close()
	if copyErr != nil {
		return written, fmt.Errorf("write %s: %w", e.Name(), copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close %s: %w", e.Name(), closeErr)
	}

	return written, nil
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
