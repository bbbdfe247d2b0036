// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"fmt"
	"math"
)

// maxRecordStringLen bounds declared string lengths to reject garbage records early.
const maxRecordStringLen = 1 << 16

// decodeEntry reads one directory record. The reserved field width depends on
// the owning index header version.
func decodeEntry(c *Cursor, version uint8) (Entry, error) {
	var e Entry
	var err error

	c.BigEndian = true
	if e.ID, err = c.ReadInt32(); err != nil {
		return e, fmt.Errorf("read id: %w", err)
	}

	c.BigEndian = false
	if e.FileType, err = readRecordString(c); err != nil {
		return e, fmt.Errorf("read file type: %w", err)
	}
	if e.AuxName, err = readRecordString(c); err != nil {
		return e, fmt.Errorf("read aux name: %w", err)
	}
	if e.FullName, err = readRecordString(c); err != nil {
		return e, fmt.Errorf("read full name: %w", err)
	}

	c.BigEndian = true
	if e.Offset, err = c.ReadInt64(); err != nil {
		return e, fmt.Errorf("read offset: %w", err)
	}
	if e.Size, err = c.ReadInt32(); err != nil {
		return e, fmt.Errorf("read size: %w", err)
	}
	if e.CompressedSize, err = c.ReadInt32(); err != nil {
		return e, fmt.Errorf("read compressed size: %w", err)
	}

	if version <= wideReservedMax {
		e.Reserved, err = c.ReadInt64()
	} else {
		var v int32
		v, err = c.ReadInt32()
		e.Reserved = int64(v)
	}
	if err != nil {
		return e, fmt.Errorf("read reserved: %w", err)
	}

	if e.PatchFileNumber, err = c.ReadUint8(); err != nil {
		return e, fmt.Errorf("read patch file number: %w", err)
	}

	return e, nil
}

// encode writes the record in the exact field order and byte order decodeEntry expects.
func (e *Entry) encode(c *Cursor, version uint8) error {
	c.BigEndian = true
	if err := c.WriteInt32(e.ID); err != nil {
		return fmt.Errorf("write id: %w", err)
	}

	c.BigEndian = false
	if err := writeRecordString(c, e.FileType); err != nil {
		return fmt.Errorf("write file type: %w", err)
	}
	if err := writeRecordString(c, e.AuxName); err != nil {
		return fmt.Errorf("write aux name: %w", err)
	}
	if err := writeRecordString(c, e.FullName); err != nil {
		return fmt.Errorf("write full name: %w", err)
	}

	c.BigEndian = true
	if err := c.WriteInt64(e.Offset); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	if err := c.WriteInt32(e.Size); err != nil {
		return fmt.Errorf("write size: %w", err)
	}
	if err := c.WriteInt32(e.CompressedSize); err != nil {
		return fmt.Errorf("write compressed size: %w", err)
	}

	var err error
	if version <= wideReservedMax {
		err = c.WriteInt64(e.Reserved)
	} else {
		err = c.WriteInt32(int32(e.Reserved)) //nolint:gosec // narrow field in version 5+
	}
	if err != nil {
		return fmt.Errorf("write reserved: %w", err)
	}

	if err := c.WriteUint8(e.PatchFileNumber); err != nil {
		return fmt.Errorf("write patch file number: %w", err)
	}

	return nil
}

// readRecordString reads an int32 length followed by a fixed-window string.
func readRecordString(c *Cursor) (string, error) {
	n, err := c.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxRecordStringLen {
		return "", fmt.Errorf("string length %d out of range", n)
	}

	return c.ReadFixedString(int(n))
}

// writeRecordString writes an int32 length followed by the string bytes.
func writeRecordString(c *Cursor, s string) error {
	if len(s) > math.MaxInt32 {
		return ErrSizeOverflow
	}

	if err := c.WriteInt32(int32(len(s))); err != nil { //nolint:gosec // bounded above
		return err
	}

	return c.WriteFixedString(s, len(s))
}
