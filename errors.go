// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import "errors"

// Sentinel errors for index and blob operations. Use errors.Is in callers.
var (
	// ErrNotAnArchive means the index file is missing, has an unknown extension, or a bad magic.
	ErrNotAnArchive = errors.New("not a resource index")
	// ErrBlobUnavailable means the blob for an entry patch number is absent or has a bad magic.
	ErrBlobUnavailable = errors.New("resource blob unavailable")
	// ErrDecompressionMismatch means inflated length differs from the declared entry size.
	ErrDecompressionMismatch = errors.New("decompressed size mismatch")
	// ErrEntryNotFound means no entry matches the requested name.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidManifestLine means a fileIds.txt line is malformed.
	ErrInvalidManifestLine = errors.New("invalid file id manifest line")
	// ErrSizeOverflow means a payload does not fit the int32 size fields.
	ErrSizeOverflow = errors.New("size exceeds int32 entry limit")
	// ErrClosed means the index was already closed.
	ErrClosed = errors.New("index already closed")
	// ErrNilIndex means the index is nil.
	ErrNilIndex = errors.New("index is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrInvalidExtractPath means entry name is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrPatchLevelOverflow means no patch number is left above the current level.
	ErrPatchLevelOverflow = errors.New("patch level exceeds 255")
	// ErrInvalidEntryPath means an entry name is empty after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
)
