// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Cursor reads and writes fixed-width fields over a seekable stream.
// Byte order is a runtime flag because index records switch endianness mid-record;
// flipping it only affects subsequent reads and writes.
type Cursor struct {
	rws io.ReadWriteSeeker
	buf [8]byte
	// BigEndian selects byte order for integer fields.
	BigEndian bool
}

// NewCursor wraps rws in a little-endian cursor.
func NewCursor(rws io.ReadWriteSeeker) *Cursor {
	return &Cursor{rws: rws}
}

// order returns byte order selected by BigEndian flag.
func (c *Cursor) order() binary.ByteOrder {
	if c.BigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(offset int64) error {
	if _, err := c.rws.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", offset, err)
	}

	return nil
}

// Position returns the current stream offset.
func (c *Cursor) Position() (int64, error) {
	return c.rws.Seek(0, io.SeekCurrent)
}

// ReadUint8 reads one byte.
func (c *Cursor) ReadUint8() (uint8, error) {
	if _, err := io.ReadFull(c.rws, c.buf[:1]); err != nil {
		return 0, err
	}

	return c.buf[0], nil
}

// ReadUint32 reads a 4-byte unsigned integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	if _, err := io.ReadFull(c.rws, c.buf[:4]); err != nil {
		return 0, err
	}

	return c.order().Uint32(c.buf[:4]), nil
}

// ReadInt32 reads a 4-byte signed integer.
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// ReadInt64 reads an 8-byte signed integer.
func (c *Cursor) ReadInt64() (int64, error) {
	if _, err := io.ReadFull(c.rws, c.buf[:8]); err != nil {
		return 0, err
	}

	return int64(c.order().Uint64(c.buf[:8])), nil //nolint:gosec // two's complement reinterpretation
}

// ReadFixedString reads exactly n bytes and returns characters up to the first NUL.
// Bytes after the NUL are consumed but not inspected.
func (c *Cursor) ReadFixedString(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("negative string length %d", n)
	}
	if n == 0 {
		return "", nil
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(c.rws, raw); err != nil {
		return "", err
	}

	for i, b := range raw {
		if b == 0 {
			return string(raw[:i]), nil
		}
	}

	return string(raw), nil
}

// WriteUint8 writes one byte.
func (c *Cursor) WriteUint8(v uint8) error {
	c.buf[0] = v
	_, err := c.rws.Write(c.buf[:1])
	return err
}

// WriteUint32 writes a 4-byte unsigned integer.
func (c *Cursor) WriteUint32(v uint32) error {
	c.order().PutUint32(c.buf[:4], v)
	_, err := c.rws.Write(c.buf[:4])
	return err
}

// WriteInt32 writes a 4-byte signed integer.
func (c *Cursor) WriteInt32(v int32) error {
	return c.WriteUint32(uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// WriteInt64 writes an 8-byte signed integer.
func (c *Cursor) WriteInt64(v int64) error {
	c.order().PutUint64(c.buf[:8], uint64(v)) //nolint:gosec // two's complement reinterpretation
	_, err := c.rws.Write(c.buf[:8])
	return err
}

// WriteFixedString writes s into an n-byte window, NUL-padded when shorter and truncated when longer.
func (c *Cursor) WriteFixedString(s string, n int) error {
	if n <= 0 {
		return nil
	}

	raw := make([]byte, n)
	copy(raw, s)
	_, err := c.rws.Write(raw)
	return err
}

// memStream is an in-memory io.ReadWriteSeeker with truncation, used to stage index images.
type memStream struct {
	data []byte
	pos  int64
}

// newMemStream returns stream positioned at zero over data.
func newMemStream(data []byte) *memStream {
	return &memStream{data: data}
}

// Read implements io.Reader.
func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// Write implements io.Writer and grows the buffer as needed.
func (m *memStream) Write(p []byte) (int, error) {
	if m.pos > int64(len(m.data)) {
		_ = m.Truncate(m.pos)
	}

	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		if end > int64(cap(m.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, m.data)
			m.data = grown
		} else {
			m.data = m.data[:end]
		}
	}

	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}

	m.pos = abs
	return abs, nil
}

// Truncate resizes the buffer, zero-filling when it grows.
func (m *memStream) Truncate(size int64) error {
	if size < 0 {
		return errors.New("negative size")
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}

	m.data = append(m.data, make([]byte, size-int64(len(m.data)))...)
	return nil
}

// Len returns the buffer length.
func (m *memStream) Len() int64 {
	return int64(len(m.data))
}

// Bytes returns the buffer contents.
func (m *memStream) Bytes() []byte {
	return m.data
}
