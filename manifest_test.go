package idres

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseManifest(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"generated/decls/a.decl=12",
		"",
		`  dir\b.txt = -3  `,
		"odd=name=7",
		"no separator",
		"bad.txt=abc",
		"=5",
		"huge.txt=99999999999",
		strings.Repeat("x", 2<<20) + "=1",
		"last.txt=8",
	}, "\r\n")

	overrides, warnings, err := ParseManifest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}

	want := []IDOverride{
		{Name: "generated/decls/a.decl", ID: 12, Line: 1},
		{Name: "dir/b.txt", ID: -3, Line: 3},
		{Name: "odd=name", ID: 7, Line: 4},
		{Name: "last.txt", ID: 8, Line: 10},
	}
	if len(overrides) != len(want) {
		t.Fatalf("overrides=%+v, want %+v", overrides, want)
	}
	for i := range want {
		if overrides[i] != want[i] {
			t.Fatalf("override %d=%+v, want %+v", i, overrides[i], want[i])
		}
	}

	if len(warnings) != 5 {
		t.Fatalf("warnings=%d, want 5", len(warnings))
	}
	for _, w := range warnings {
		if !errors.Is(w, ErrInvalidManifestLine) {
			t.Fatalf("warning %v must wrap ErrInvalidManifestLine", w)
		}
	}
}

func TestApplyManifestFileFirstMatchWins(t *testing.T) {
	t.Parallel()

	manifestPath := filepath.Join(t.TempDir(), ManifestName)
	if err := os.WriteFile(manifestPath, []byte("dup.txt=5\nDUP.TXT=6\nx=\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries := []Entry{
		{FullName: "dup.txt", ID: 0},
		{FullName: "dup.txt", ID: 1},
	}

	applied, skipped, err := applyManifestFile(entries, manifestPath, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("applyManifestFile: %v", err)
	}

	// Names match exactly, so DUP.TXT is unknown.
	if applied != 1 || skipped != 2 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	if entries[0].ID != 5 || entries[1].ID != 1 {
		t.Fatalf("ids=%d,%d", entries[0].ID, entries[1].ID)
	}
}

func TestApplyManifestFileRootedNames(t *testing.T) {
	t.Parallel()

	manifestPath := filepath.Join(t.TempDir(), ManifestName)
	entries := []Entry{
		{FullName: "/rooted/a.txt", ID: 1},
		{FullName: `.\dotted\b.txt`, ID: 2},
	}
	if err := writeManifest(manifestPath, []Entry{
		{FullName: "/rooted/a.txt", ID: 10},
		{FullName: "./dotted/b.txt", ID: 20},
	}); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}

	applied, skipped, err := applyManifestFile(entries, manifestPath, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("applyManifestFile: %v", err)
	}
	if applied != 2 || skipped != 0 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	if entries[0].ID != 10 || entries[1].ID != 20 {
		t.Fatalf("ids=%d,%d", entries[0].ID, entries[1].ID)
	}
}

func TestWriteManifestRoundTrip(t *testing.T) {
	t.Parallel()

	manifestPath := filepath.Join(t.TempDir(), ManifestName)
	entries := []Entry{
		{FullName: "a.txt", ID: 3},
		{FileType: "renderParm", FullName: `b\c.decl`, ID: 4},
	}
	if err := writeManifest(manifestPath, entries); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}

	f, err := os.Open(manifestPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	overrides, warnings, err := ParseManifest(f)
	if err != nil || len(warnings) != 0 {
		t.Fatalf("ParseManifest err=%v warnings=%v", err, warnings)
	}
	if len(overrides) != 2 || overrides[0].Name != "a.txt" || overrides[1].Name != "b/c.decl" || overrides[1].ID != 4 {
		t.Fatalf("overrides=%+v", overrides)
	}
}
