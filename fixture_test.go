package idres

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// fixtureEntry describes one entry of a generated archive.
type fixtureEntry struct {
	name     string
	fileType string
	data     []byte
	id       int32
	patch    uint8
	compress bool
}

// fixtureChain is a generated blob chain with one directory file.
type fixtureChain struct {
	indexPath string
	entries   []Entry
}

// buildChain writes blobs for every patch number used by entries and one
// directory file at indexPath describing them in order.
func buildChain(t *testing.T, indexPath string, version uint8, items []fixtureEntry) fixtureChain {
	t.Helper()

	blobs := map[uint8]*bytes.Buffer{0: bytes.NewBuffer(blobHeader(version, 0))}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		fileType := item.fileType
		if fileType == "" {
			fileType = DefaultFileType
		}

		e := Entry{
			ID:              item.id,
			FileType:        fileType,
			AuxName:         item.name,
			FullName:        item.name,
			PatchFileNumber: item.patch,
		}

		blob, ok := blobs[item.patch]
		if !ok {
			blob = bytes.NewBuffer(blobHeader(version, item.patch))
			blobs[item.patch] = blob
		}

		if len(item.data) > 0 {
			stored := item.data
			if item.compress {
				var err error
				stored, err = Deflate(FlateCodec{}, item.data)
				if err != nil {
					t.Fatalf("Deflate: %v", err)
				}
			}

			e.Offset = int64(blob.Len())
			e.Size = int32(len(item.data))
			e.CompressedSize = int32(len(stored))
			blob.Write(stored)
		}

		entries = append(entries, e)
	}

	for p, blob := range blobs {
		if err := os.WriteFile(BlobPath(indexPath, p), blob.Bytes(), 0o600); err != nil {
			t.Fatalf("write blob %d: %v", p, err)
		}
	}

	writeIndexFile(t, indexPath, version, entries)
	return fixtureChain{indexPath: indexPath, entries: entries}
}

// writeIndexFile encodes entries into a directory file.
func writeIndexFile(t *testing.T, indexPath string, version uint8, entries []Entry) {
	t.Helper()

	ms := newMemStream(make([]byte, directoryOffset))
	c := NewCursor(ms)
	if err := c.Seek(directoryOffset); err != nil {
		t.Fatalf("seek: %v", err)
	}

	c.BigEndian = true
	if err := c.WriteInt32(int32(len(entries))); err != nil {
		t.Fatalf("write count: %v", err)
	}
	for i := range entries {
		if err := entries[i].encode(c, version); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	image := ms.Bytes()
	binary.LittleEndian.PutUint32(image[0:4], magicMarker|uint32(version))
	binary.BigEndian.PutUint32(image[4:8], uint32(len(image)-directoryOffset))

	if err := os.WriteFile(indexPath, image, 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
}

// writeTree writes files under root; keys are slash paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// openTest opens indexPath and registers Close.
func openTest(t *testing.T, indexPath string, opts ...Option) *Index {
	t.Helper()

	x, err := Open(indexPath, opts...)
	if err != nil {
		t.Fatalf("Open(%s): %v", indexPath, err)
	}
	t.Cleanup(func() { _ = x.Close() })

	return x
}

// readEntry reads the decompressed payload of the entry at position i.
func readEntry(t *testing.T, x *Index, i int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if _, err := x.CopyEntryData(x.Entries()[i], &buf, true); err != nil {
		t.Fatalf("CopyEntryData(%d): %v", i, err)
	}

	return buf.Bytes()
}
