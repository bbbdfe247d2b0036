// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"bytes"
	"fmt"
	"io"
)

// nopCloser wraps a reader and provides a no-op close.
type nopCloser struct {
	io.Reader
}

// Close closes nopCloser (no-op).
func (nopCloser) Close() error {
	return nil
}

// entryStream closes the inflater of a compressed entry.
type entryStream struct {
	io.Reader
	closer io.Closer
}

// Close releases the inflater.
func (s entryStream) Close() error {
	return s.closer.Close()
}

// openEntryByInfo opens payload stream for already resolved entry metadata.
func (x *Index) openEntryByInfo(e Entry) (io.ReadCloser, error) {
	if e.IsEmpty() {
		return nopCloser{Reader: bytes.NewReader(nil)}, nil
	}

	blob, ok := x.blobs.get(e.PatchFileNumber)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs %s", ErrBlobUnavailable, e.Name(), x.blobs.path(e.PatchFileNumber))
	}
	if e.Offset < 0 || e.CompressedSize < 0 || e.Size < 0 {
		return nil, fmt.Errorf("entry %s has negative offset or size", e.Name())
	}

	sr := io.NewSectionReader(blob, e.Offset, int64(e.CompressedSize))
	if !e.IsCompressed() {
		return nopCloser{Reader: sr}, nil
	}

	rc := x.cfg.codec.NewReader(sr)
	return entryStream{Reader: io.LimitReader(rc, int64(e.Size)), closer: rc}, nil
}

// OpenEntry opens the first entry matching name for reading.
// Compressed entries are inflated while reading; the stream ends after Size bytes.
func (x *Index) OpenEntry(name string) (io.ReadCloser, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	idx := x.indexOf(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return x.openEntryByInfo(x.entries[idx])
}

// OpenEntryInfo opens entry stream by already resolved metadata.
func (x *Index) OpenEntryInfo(e Entry) (io.ReadCloser, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	return x.openEntryByInfo(e)
}

// ReadEntry reads full (decompressed) content of the named entry.
func (x *Index) ReadEntry(name string) ([]byte, error) {
	rc, err := x.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
