package idres

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/pathrules"
)

func TestExtractWritesFilesAndManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "gameresources.index")
	bar := bytes.Repeat([]byte("renderParm body "), 40)
	buildChain(t, indexPath, 5, []fixtureEntry{
		{name: "foo.txt", data: []byte("hello"), id: 0},
		{name: "bar.decl", fileType: "renderParm", data: bar, compress: true, id: 1},
		{name: "empty.bin", id: 2},
		{name: "sub/dir/x.bin", data: []byte{1, 2, 3}, id: 9},
	})

	x := openTest(t, indexPath)
	outDir := filepath.Join(dir, "out")

	var seen []string
	res, err := x.Extract(outDir, ExtractOptions{
		OnEntryDone: func(e Entry, _ int64, _ string) { seen = append(seen, e.Name()) },
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Extracted != 3 || res.Skipped != 1 || res.Bytes != int64(5+len(bar)+3) {
		t.Fatalf("result=%+v", res)
	}
	if len(seen) != 3 {
		t.Fatalf("callbacks=%v", seen)
	}

	files := map[string][]byte{
		"foo.txt":             []byte("hello"),
		"bar.decl;renderParm": bar,
		"sub/dir/x.bin":       {1, 2, 3},
	}
	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("%s content mismatch", rel)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "empty.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty entries must not be written, stat err=%v", err)
	}

	if res.ManifestPath != filepath.Join(outDir, ManifestName) {
		t.Fatalf("ManifestPath=%q", res.ManifestPath)
	}
	manifest, err := os.ReadFile(res.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if want := "foo.txt=0\nbar.decl=1\nsub/dir/x.bin=9\n"; string(manifest) != want {
		t.Fatalf("manifest=%q, want %q", manifest, want)
	}
}

func TestExtractFilterRawAndSkipManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "gameresources.index")
	chain := buildChain(t, indexPath, 5, []fixtureEntry{
		{name: "a.txt", data: []byte("a")},
		{name: "textures/t.bin", data: bytes.Repeat([]byte("t"), 300), compress: true},
		{name: "other/o.bin", data: []byte("o")},
	})

	x := openTest(t, indexPath)
	outDir := filepath.Join(dir, "out")
	res, err := x.Extract(outDir, ExtractOptions{
		Filter: []pathrules.Rule{
			{Action: pathrules.ActionInclude, Pattern: "*.txt"},
			{Action: pathrules.ActionInclude, Pattern: "TEXTURES/**"},
		},
		Raw:          true,
		SkipManifest: true,
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Extracted != 2 || res.Skipped != 1 || res.ManifestPath != "" {
		t.Fatalf("result=%+v", res)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "textures", "t.bin"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) != int(chain.entries[1].CompressedSize) {
		t.Fatalf("raw extract len=%d, want stored size %d", len(raw), chain.entries[1].CompressedSize)
	}

	for _, rel := range []string{filepath.Join("other", "o.bin"), ManifestName} {
		if _, err := os.Stat(filepath.Join(outDir, rel)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s must not exist, stat err=%v", rel, err)
		}
	}
}

func TestExtractSkipsUnavailableBlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "gameresources_002.pindex")
	buildChain(t, indexPath, 5, []fixtureEntry{
		{name: "base.txt", data: []byte("base")},
		{name: "lost.txt", data: []byte("lost"), patch: 2},
	})
	if err := os.Remove(BlobPath(indexPath, 2)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	x := openTest(t, indexPath)
	outDir := filepath.Join(dir, "out")
	res, err := x.Extract(outDir, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Extracted != 1 || res.Skipped != 1 {
		t.Fatalf("result=%+v", res)
	}
	if _, err := os.Stat(filepath.Join(outDir, "lost.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unavailable entry must not create a file, stat err=%v", err)
	}
}

func TestExtractRejectsUnsafeEntryPaths(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		entryPath string
	}{
		{name: "dot-dot slash", entryPath: "../evil.txt"},
		{name: "dot-dot backslash", entryPath: `..\evil.txt`},
		{name: "absolute slash", entryPath: "/absolute.txt"},
		{name: "absolute backslash", entryPath: `\absolute.txt`},
		{name: "windows drive", entryPath: `C:\absolute.txt`},
		{name: "nested dot-dot", entryPath: "a/../../evil.txt"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			indexPath := filepath.Join(dir, "gameresources.index")
			buildChain(t, indexPath, 5, []fixtureEntry{{name: tc.entryPath, data: []byte("hello")}})

			x := openTest(t, indexPath)
			_, err := x.Extract(filepath.Join(dir, "out"), ExtractOptions{})
			if !errors.Is(err, ErrInvalidExtractPath) {
				t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
			}
		})
	}
}

func TestNormalizeExtractEntryPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{in: "a/b.txt", want: "a/b.txt"},
		{in: `./a\\b.txt`, want: "a/b.txt"},
		{in: "bar.decl;renderParm", want: "bar.decl;renderParm"},
	}

	for _, tc := range testCases {
		got, err := normalizeExtractEntryPath(tc.in)
		if err != nil {
			t.Fatalf("normalizeExtractEntryPath(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalizeExtractEntryPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := normalizeExtractEntryPath(" "); !errors.Is(err, ErrInvalidExtractPath) {
		t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
	}
}
