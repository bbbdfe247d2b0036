// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Codec is the raw deflate capability used for compressed entries.
// Streams carry no zlib or gzip container header.
type Codec interface {
	// NewReader returns an inflating reader over src.
	NewReader(src io.Reader) io.ReadCloser
	// NewWriter returns a deflating writer into dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)
}

// FlateCodec is the default Codec backed by klauspost/compress/flate.
type FlateCodec struct {
	// Level is the deflate level; zero means flate.BestCompression.
	Level int
}

// NewReader implements Codec.
func (FlateCodec) NewReader(src io.Reader) io.ReadCloser {
	return flate.NewReader(src)
}

// NewWriter implements Codec.
func (c FlateCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	level := c.Level
	if level == 0 {
		level = flate.BestCompression
	}

	return flate.NewWriter(dst, level)
}

// Deflate compresses data with codec into a raw deflate stream.
// Entries produced this way are readable by CopyEntryData; byte-for-byte
// equality with game-produced payloads is not guaranteed.
func Deflate(codec Codec, data []byte) ([]byte, error) {
	if codec == nil {
		codec = FlateCodec{}
	}

	var buf bytes.Buffer
	w, err := codec.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create deflate writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("deflate write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}

	return buf.Bytes(), nil
}
