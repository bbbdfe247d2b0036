// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Header is the fixed part of a directory file.
type Header struct {
	// IndexSize is the header size field.
	IndexSize int32 `json:"index_size" yaml:"index_size"`
	// EntryCount is the declared number of records.
	EntryCount int32 `json:"entry_count" yaml:"entry_count"`
	// Version is the low byte of the magic.
	Version uint8 `json:"version" yaml:"version"`
}

// ReadHeader reads only the header of a directory file. Blobs are not
// checked and records are not parsed.
func ReadHeader(indexPath string) (Header, error) {
	if !isIndexPath(indexPath) {
		return Header{}, fmt.Errorf("%w: %s: unknown extension", ErrNotAnArchive, indexPath)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrNotAnArchive, err)
	}
	defer func() { _ = f.Close() }()

	return ReadHeaderFromReaderAt(f)
}

// ReadHeaderFromReaderAt reads directory header fields from a random-access source.
func ReadHeaderFromReaderAt(ra io.ReaderAt) (Header, error) {
	if ra == nil {
		return Header{}, ErrNilIndex
	}

	var raw [directoryOffset + 4]byte
	if _, err := ra.ReadAt(raw[:], 0); err != nil {
		return Header{}, fmt.Errorf("%w: short header: %w", ErrNotAnArchive, err)
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	version, ok := parseMagic(magic)
	if !ok {
		return Header{}, fmt.Errorf("%w: bad magic 0x%08x", ErrNotAnArchive, magic)
	}

	return Header{
		Version:    version,
		IndexSize:  int32(binary.BigEndian.Uint32(raw[4:8])),                                 //nolint:gosec // raw field
		EntryCount: int32(binary.BigEndian.Uint32(raw[directoryOffset : directoryOffset+4])), //nolint:gosec // raw field
	}, nil
}

// ListEntries opens a directory read-only and returns its entries.
func ListEntries(indexPath string, opts ...Option) ([]Entry, error) {
	x, err := Open(indexPath, append(append([]Option(nil), opts...), WithReadOnly())...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = x.Close() }()

	return x.Entries(), nil
}
