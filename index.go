// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
)

// ErrReadOnly means Save was called on an index opened with WithReadOnly.
var ErrReadOnly = errors.New("index opened read-only")

// Option configures Open.
type Option func(*config)

// config holds Open settings.
type config struct {
	logger         *slog.Logger
	codec          Codec
	copyBufferSize int
	strict         bool
	readOnly       bool
}

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCodec sets the raw deflate codec.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		c.codec = codec
	}
}

// WithStrictDecompression makes CopyEntryData fail on short payloads instead of warning.
func WithStrictDecompression() Option {
	return func(c *config) {
		c.strict = true
	}
}

// WithCopyBufferSize sets the chunk size used to copy payloads.
func WithCopyBufferSize(size int) Option {
	return func(c *config) {
		c.copyBufferSize = size
	}
}

// WithReadOnly opens the index without write access; Save then fails.
func WithReadOnly() Option {
	return func(c *config) {
		c.readOnly = true
	}
}

// newConfig applies options over defaults.
func newConfig(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.codec == nil {
		cfg.codec = FlateCodec{}
	}
	if cfg.copyBufferSize <= 0 {
		cfg.copyBufferSize = DefaultCopyBufferSize
	}

	return cfg
}

// Index is an opened directory file together with its blob chain.
// It is not safe for concurrent use; one Index owns its entries and handles.
type Index struct {
	file    *os.File
	blobs   *blobResolver
	path    string
	entries []Entry
	cfg     config
	header  [directoryOffset]byte
	// indexSize is the header size field as read on load or written on save.
	indexSize  int32
	version    uint8
	patchLevel uint8
	closed     bool
}

// Open loads a directory file (.index or .pindex) and validates its base blob.
// Every rejection wraps ErrNotAnArchive; nothing stays open on failure.
func Open(indexPath string, opts ...Option) (*Index, error) {
	cfg := newConfig(opts)

	if !isIndexPath(indexPath) {
		return nil, fmt.Errorf("%w: %s: unknown extension", ErrNotAnArchive, indexPath)
	}

	flag := os.O_RDWR
	if cfg.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(indexPath, flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotAnArchive, err)
		}

		return nil, fmt.Errorf("open index: %w", err)
	}

	x := &Index{
		file:  f,
		path:  indexPath,
		cfg:   cfg,
		blobs: newBlobResolver(indexPath, cfg.logger),
	}

	if err := x.load(); err != nil {
		_ = x.Close()
		return nil, err
	}

	return x, nil
}

// load parses header and directory from the index file.
func (x *Index) load() error {
	raw, err := io.ReadAll(x.file)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if len(raw) < directoryOffset+4 {
		return fmt.Errorf("%w: %s: short header", ErrNotAnArchive, x.path)
	}

	c := NewCursor(newMemStream(raw))
	magic, err := c.ReadUint32()
	if err != nil {
		return fmt.Errorf("%w: read magic: %w", ErrNotAnArchive, err)
	}

	version, ok := parseMagic(magic)
	if !ok {
		return fmt.Errorf("%w: %s: bad magic 0x%08x", ErrNotAnArchive, x.path, magic)
	}

	c.BigEndian = true
	if x.indexSize, err = c.ReadInt32(); err != nil {
		return fmt.Errorf("%w: read index size: %w", ErrNotAnArchive, err)
	}

	if _, ok := x.blobs.get(0); !ok {
		return fmt.Errorf("%w: base blob %s missing or invalid", ErrNotAnArchive, x.blobs.path(0))
	}

	if err := c.Seek(directoryOffset); err != nil {
		return err
	}

	c.BigEndian = true
	count, err := c.ReadInt32()
	if err != nil {
		return fmt.Errorf("%w: read entry count: %w", ErrNotAnArchive, err)
	}
	if count < 0 {
		return fmt.Errorf("%w: negative entry count %d", ErrNotAnArchive, count)
	}

	entries := make([]Entry, 0, min(int(count), 1<<16))
	var level uint8
	for i := range int(count) {
		e, err := decodeEntry(c, version)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrNotAnArchive, i, err)
		}

		level = max(level, e.PatchFileNumber)
		entries = append(entries, e)
	}

	copy(x.header[:], raw[:directoryOffset])
	x.version = version
	x.entries = entries
	x.patchLevel = level
	return nil
}

// Save rewrites the directory from the current entry sequence.
// The header size field is computed from the final length, so it is written last.
func (x *Index) Save() error {
	if err := x.checkOpen(); err != nil {
		return err
	}
	if x.cfg.readOnly {
		return ErrReadOnly
	}

	ms := newMemStream(append([]byte(nil), x.header[:]...))
	if err := ms.Truncate(directoryOffset); err != nil {
		return err
	}

	c := NewCursor(ms)
	if err := c.Seek(directoryOffset); err != nil {
		return err
	}

	if len(x.entries) > maxEntrySize {
		return fmt.Errorf("%w: %d entries", ErrSizeOverflow, len(x.entries))
	}

	c.BigEndian = true
	if err := c.WriteInt32(int32(len(x.entries))); err != nil { //nolint:gosec // bounded above
		return fmt.Errorf("write entry count: %w", err)
	}

	for i := range x.entries {
		if err := x.entries[i].encode(c, x.version); err != nil {
			return fmt.Errorf("encode entry %s: %w", x.entries[i].Name(), err)
		}
	}

	directorySize := ms.Len() - directoryOffset
	if directorySize > maxEntrySize {
		return fmt.Errorf("%w: directory of %d bytes", ErrSizeOverflow, directorySize)
	}

	if err := c.Seek(0); err != nil {
		return err
	}

	c.BigEndian = false
	if err := c.WriteUint32(magicMarker | uint32(x.version)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}

	c.BigEndian = true
	if err := c.WriteInt32(int32(directorySize)); err != nil {
		return fmt.Errorf("write index size: %w", err)
	}

	image := ms.Bytes()
	if _, err := x.file.WriteAt(image, 0); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := x.file.Truncate(int64(len(image))); err != nil {
		return fmt.Errorf("truncate index: %w", err)
	}
	if err := x.file.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}

	copy(x.header[:], image[:directoryOffset])
	x.indexSize = int32(directorySize)
	return nil
}

// Close closes the index file and every cached blob handle.
func (x *Index) Close() error {
	if x == nil || x.closed {
		return nil
	}

	x.closed = true
	var first error
	if x.file != nil {
		first = x.file.Close()
		x.file = nil
	}

	if err := x.blobs.close(); err != nil && first == nil {
		first = err
	}

	return first
}

// checkOpen validates index state for operations.
func (x *Index) checkOpen() error {
	if x == nil {
		return ErrNilIndex
	}
	if x.closed {
		return ErrClosed
	}

	return nil
}

// Path returns the directory file path.
func (x *Index) Path() string {
	return x.path
}

// HeaderVersion returns the version byte of the magic.
func (x *Index) HeaderVersion() uint8 {
	return x.version
}

// IndexSize returns the header size field.
func (x *Index) IndexSize() int32 {
	return x.indexSize
}

// PatchLevel returns the patch number a rebuild targets.
func (x *Index) PatchLevel() uint8 {
	return x.patchLevel
}

// SetPatchLevel changes the target patch number. It may not drop below any
// entry's patch file number.
func (x *Index) SetPatchLevel(level uint8) error {
	for i := range x.entries {
		if x.entries[i].PatchFileNumber > level {
			return fmt.Errorf("patch level %d below entry %s patch %d", level, x.entries[i].Name(), x.entries[i].PatchFileNumber)
		}
	}

	x.patchLevel = level
	return nil
}

// BlobPath returns the blob path for patch number p.
func (x *Index) BlobPath(p uint8) string {
	return x.blobs.path(p)
}

// HasBlob reports whether blob p exists and has a valid magic.
func (x *Index) HasBlob(p uint8) bool {
	if x.checkOpen() != nil {
		return false
	}

	_, ok := x.blobs.get(p)
	return ok
}

// Len returns number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries returns a copy of entries in directory order.
func (x *Index) Entries() []Entry {
	if x == nil {
		return nil
	}

	return slices.Clone(x.entries)
}

// Find returns the first entry whose name matches by SameName.
func (x *Index) Find(name string) (Entry, bool) {
	idx := x.indexOf(name)
	if idx < 0 {
		return Entry{}, false
	}

	return x.entries[idx], true
}

// indexOf returns position of first entry matching name, or -1.
func (x *Index) indexOf(name string) int {
	key := nameKey(name)
	for i := range x.entries {
		if nameKey(x.entries[i].Name()) == key {
			return i
		}
	}

	return -1
}

// Delete removes the first entry matching each name. Names without a match are
// logged and returned; they do not count as deleted. Space is reclaimed only by
// a following Rebuild of the current patch level.
func (x *Index) Delete(names ...string) (int, []string) {
	deleted := 0
	var missing []string
	for _, name := range names {
		idx := x.indexOf(name)
		if idx < 0 {
			x.cfg.logger.Warn("skip delete", slog.Any("error", fmt.Errorf("%w: %s", ErrEntryNotFound, name)))
			missing = append(missing, name)
			continue
		}

		x.entries = slices.Delete(x.entries, idx, idx+1)
		deleted++
	}

	return deleted, missing
}

// CopyEntryData copies entry payload into dst and returns bytes written.
// Empty entries copy nothing. Unreachable blobs yield ErrBlobUnavailable.
// With decompress set, compressed entries are inflated up to Size bytes;
// a shortfall is logged and the obtained bytes are kept unless strict
// decompression was requested.
func (x *Index) CopyEntryData(e Entry, dst io.Writer, decompress bool) (int64, error) {
	if err := x.checkOpen(); err != nil {
		return 0, err
	}
	if dst == nil {
		return 0, ErrNilWriter
	}
	if e.IsEmpty() {
		return 0, nil
	}

	blob, ok := x.blobs.get(e.PatchFileNumber)
	if !ok {
		return 0, fmt.Errorf("%w: %s needs %s", ErrBlobUnavailable, e.Name(), x.blobs.path(e.PatchFileNumber))
	}

	if e.Offset < 0 || e.CompressedSize < 0 || e.Size < 0 {
		return 0, fmt.Errorf("entry %s has negative offset or size", e.Name())
	}

	buf := make([]byte, x.cfg.copyBufferSize)
	src := io.NewSectionReader(blob, e.Offset, int64(e.CompressedSize))

	if !e.IsCompressed() || !decompress {
		want := int64(e.CompressedSize)
		n, err := copyAtMost(dst, src, want, buf)
		if err != nil {
			return n, fmt.Errorf("copy %s: %w", e.Name(), err)
		}
		if n != want {
			return n, x.shortPayload(e, want, n, io.ErrUnexpectedEOF, nil)
		}

		return n, nil
	}

	rc := x.cfg.codec.NewReader(src)
	defer func() { _ = rc.Close() }()

	want := int64(e.Size)
	n, err := copyAtMost(dst, rc, want, buf)
	var werr *writeError
	if errors.As(err, &werr) {
		return n, fmt.Errorf("copy %s: %w", e.Name(), werr.err)
	}
	if n != want || err != nil {
		return n, x.shortPayload(e, want, n, ErrDecompressionMismatch, err)
	}

	return n, nil
}

// shortPayload applies shortfall policy: warn and continue, or fail in strict mode.
func (x *Index) shortPayload(e Entry, want, got int64, kind error, cause error) error {
	err := fmt.Errorf("%w: %s expected %d bytes, got %d", kind, e.Name(), want, got)
	if cause != nil {
		err = fmt.Errorf("%w (%w)", err, cause)
	}

	if x.cfg.strict {
		return err
	}

	x.cfg.logger.Warn("short entry payload",
		slog.String("name", e.Name()),
		slog.Int64("expected", want),
		slog.Int64("actual", got),
		slog.Any("error", cause))
	return nil
}

// writeError marks destination failures so they are not mistaken for short source data.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }

func (e *writeError) Unwrap() error { return e.err }

// copyAtMost copies up to limit bytes in chunks of len(buf) and stops at EOF.
// Reaching EOF early is not an error; callers compare the returned count.
func copyAtMost(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultCopyBufferSize)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunk := buf
		if remaining := limit - written; int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, readErr := src.Read(chunk)
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(chunk[:n])
			written += int64(nw)
			if writeErr != nil {
				return written, &writeError{err: writeErr}
			}
			if nw != n {
				return written, &writeError{err: io.ErrShortWrite}
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}

		if n == 0 {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}
		}
	}

	return written, nil
}
