// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
)

// blobResolver maps patch numbers to blob files and owns their open handles.
// Handles are cached by resolved path and stay open until close.
type blobResolver struct {
	logger    *slog.Logger
	handles   map[string]*os.File
	indexPath string
}

// newBlobResolver creates resolver for the chain indexPath belongs to.
func newBlobResolver(indexPath string, logger *slog.Logger) *blobResolver {
	return &blobResolver{
		indexPath: indexPath,
		logger:    logger,
		handles:   make(map[string]*os.File, 2),
	}
}

// path returns the blob path for patch number p.
func (b *blobResolver) path(p uint8) string {
	return BlobPath(b.indexPath, p)
}

// get returns open handle for blob p. Missing files and bad magic report false;
// absent patch blobs are legitimate.
func (b *blobResolver) get(p uint8) (*os.File, bool) {
	blobPath := b.path(p)
	if f, ok := b.handles[blobPath]; ok {
		return f, true
	}

	f, err := os.Open(blobPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("open blob failed", slog.String("path", blobPath), slog.Any("error", err))
		}

		return nil, false
	}

	if _, ok := readMagic(f); !ok {
		_ = f.Close()
		b.logger.Warn("blob has bad magic", slog.String("path", blobPath))
		return nil, false
	}

	b.handles[blobPath] = f
	return f, true
}

// forget closes the cached handle of blob p, if any, so the next get reopens the file.
func (b *blobResolver) forget(p uint8) error {
	blobPath := b.path(p)
	f, ok := b.handles[blobPath]
	if !ok {
		return nil
	}

	delete(b.handles, blobPath)
	return f.Close()
}

// close closes and forgets every cached handle.
func (b *blobResolver) close() error {
	var first error
	for blobPath, f := range b.handles {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}

		delete(b.handles, blobPath)
	}

	return first
}

// readMagic reads the 4-byte magic at offset 0 and returns header version when valid.
func readMagic(f *os.File) (uint8, bool) {
	var raw [4]byte
	if _, err := f.ReadAt(raw[:], 0); err != nil {
		return 0, false
	}

	return parseMagic(binary.LittleEndian.Uint32(raw[:]))
}

// parseMagic validates magic marker and returns version byte.
func parseMagic(magic uint32) (uint8, bool) {
	if magic&magicMask != magicMarker {
		return 0, false
	}

	return uint8(magic & 0xFF), true //nolint:gosec // masked to one byte
}

// blobHeader returns header bytes written at the start of a new blob.
func blobHeader(version uint8, patchLevel uint8) []byte {
	size := baseBlobHeader
	if patchLevel > 0 {
		size = patchBlobHeader
	}

	header := make([]byte, size)
	binary.LittleEndian.PutUint32(header[:4], magicMarker|uint32(version))
	return header
}
