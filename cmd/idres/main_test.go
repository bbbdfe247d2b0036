package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/idres"
)

type testFile struct {
	name string
	data string
	id   int32
}

// writeArchive writes a version 5 index at indexPath and a base blob holding files raw.
func writeArchive(t *testing.T, indexPath string, files []testFile) {
	t.Helper()

	blob := make([]byte, 16)
	binary.LittleEndian.PutUint32(blob, 0x52455305)

	dir := make([]byte, 0x20, 256)
	dir = binary.BigEndian.AppendUint32(dir, uint32(len(files)))
	for _, f := range files {
		for len(blob)%16 != 0 {
			blob = append(blob, 0)
		}
		offset := len(blob)
		blob = append(blob, f.data...)

		dir = binary.BigEndian.AppendUint32(dir, uint32(f.id))
		for _, s := range []string{"file", f.name, f.name} {
			dir = binary.LittleEndian.AppendUint32(dir, uint32(len(s)))
			dir = append(dir, s...)
		}
		dir = binary.BigEndian.AppendUint64(dir, uint64(offset))
		dir = binary.BigEndian.AppendUint32(dir, uint32(len(f.data)))
		dir = binary.BigEndian.AppendUint32(dir, uint32(len(f.data)))
		dir = binary.BigEndian.AppendUint32(dir, 0)
		dir = append(dir, 0)
	}
	binary.LittleEndian.PutUint32(dir[0:4], 0x52455305)
	binary.BigEndian.PutUint32(dir[4:8], uint32(len(dir)-0x20))

	require.NoError(t, os.WriteFile(idres.BlobPath(indexPath, 0), blob, 0o600))
	require.NoError(t, os.WriteFile(indexPath, dir, 0o600))
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func readNamed(t *testing.T, indexPath, name string) []byte {
	t.Helper()

	x, err := idres.Open(indexPath, idres.WithReadOnly())
	require.NoError(t, err)
	defer func() { _ = x.Close() }()

	data, err := x.ReadEntry(name)
	require.NoError(t, err)
	return data
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	_, stderr, err := runCLI(t)
	require.ErrorIs(t, err, errUsage)
	require.Contains(t, stderr, "Commands:")

	_, _, err = runCLI(t, "help")
	require.NoError(t, err)

	_, stderr, err = runCLI(t, "bogus")
	require.ErrorIs(t, err, errUsage)
	require.Contains(t, stderr, `unknown command "bogus"`)

	_, _, err = runCLI(t, "repack", "only-one-arg")
	require.ErrorIs(t, err, errUsage)

	_, _, err = runCLI(t, "list", "--no-such-flag", "x.index")
	require.ErrorIs(t, err, errUsage)
}

func TestRunList(t *testing.T) {
	t.Parallel()

	indexPath := filepath.Join(t.TempDir(), "gameresources.index")
	writeArchive(t, indexPath, []testFile{
		{name: "generated/a.decl", data: "alpha", id: 3},
		{name: "b.txt", data: strings.Repeat("b", 2048), id: 4},
	})

	stdout, _, err := runCLI(t, "list", "-q", "--format", "json", indexPath)
	require.NoError(t, err)

	var fromJSON listing
	require.NoError(t, json.Unmarshal([]byte(stdout), &fromJSON))
	require.Equal(t, uint8(5), fromJSON.HeaderVersion)
	require.Len(t, fromJSON.Entries, 2)
	require.Equal(t, "generated/a.decl", fromJSON.Entries[0].FullName)
	require.Equal(t, int32(4), fromJSON.Entries[1].ID)

	stdout, _, err = runCLI(t, "list", "-q", "-f", "YAML", indexPath)
	require.NoError(t, err)

	var fromYAML listing
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &fromYAML))
	require.Equal(t, fromJSON, fromYAML)

	stdout, _, err = runCLI(t, "list", "-q", indexPath)
	require.NoError(t, err)
	require.Contains(t, stdout, "generated/a.decl")
	require.Contains(t, stdout, "2.0 KiB")

	_, _, err = runCLI(t, "list", "-q", "-f", "xml", indexPath)
	require.ErrorIs(t, err, errUsage)
}

func TestRunExtractRepackDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "gameresources.index")
	writeArchive(t, indexPath, []testFile{
		{name: "foo.txt", data: "foo", id: 0},
		{name: "maps/bar.map", data: "bar", id: 1},
		{name: "maps/tmp.map", data: "tmp", id: 2},
	})

	_, _, err := runCLI(t, "extract", "-q", "-x", "maps/tmp.*", indexPath)
	require.NoError(t, err)

	dest := filepath.Join(dir, "gameresources")
	got, err := os.ReadFile(filepath.Join(dest, "maps", "bar.map"))
	require.NoError(t, err)
	require.Equal(t, "bar", string(got))
	require.NoFileExists(t, filepath.Join(dest, "maps", "tmp.map"))

	ids, err := os.ReadFile(filepath.Join(dest, idres.ManifestName))
	require.NoError(t, err)
	require.Equal(t, "foo.txt=0\nmaps/bar.map=1\n", string(ids))

	// Edit the extracted tree and feed it back.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "foo.txt"), []byte("edited"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dest, idres.ManifestName), []byte("foo.txt=50\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "skip.bak"), []byte("x"), 0o600))

	_, _, err = runCLI(t, "repack", "-q", "-x", "*.bak", "--backup-keep", "1", indexPath, dest)
	require.NoError(t, err)
	require.FileExists(t, idres.BlobPath(indexPath, 0)+".bak")
	require.Equal(t, "edited", string(readNamed(t, indexPath, "foo.txt")))

	entries, err := idres.ListEntries(indexPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int32(50), entries[0].ID)

	_, _, err = runCLI(t, "delete", "-q", indexPath, "maps/tmp.map", "missing.map")
	require.NoError(t, err)

	entries, err = idres.ListEntries(indexPath)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bar", string(readNamed(t, indexPath, "maps/bar.map")))
}

func TestRunCreatePatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "gameresources.index")
	writeArchive(t, indexPath, []testFile{{name: "a.txt", data: "base"}})

	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(content, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(content, "a.txt"), []byte("patched"), 0o600))

	_, _, err := runCLI(t, "create-patch", "-q", "--level", "3", indexPath, content)
	require.NoError(t, err)

	patchIndex := filepath.Join(dir, "gameresources_003.pindex")
	require.FileExists(t, patchIndex)
	require.FileExists(t, filepath.Join(dir, "gameresources_003.patch"))
	require.Equal(t, "patched", string(readNamed(t, patchIndex, "a.txt")))
	require.Equal(t, "base", string(readNamed(t, indexPath, "a.txt")))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestRunMods(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	baseDir := filepath.Join(dir, "base")
	modDir := filepath.Join(dir, "mods")
	require.NoError(t, os.MkdirAll(baseDir, 0o750))
	require.NoError(t, os.MkdirAll(modDir, 0o750))

	latest := filepath.Join(baseDir, "gameresources_001.pindex")
	writeArchive(t, latest, []testFile{
		{name: "a.txt", data: "game a", id: 0},
		{name: "b.txt", data: "game b", id: 1},
	})
	// Other prefixes are not considered.
	writeArchive(t, filepath.Join(baseDir, "mp_gameresources_009.pindex"), []testFile{{name: "mp.txt", data: "mp"}})

	require.NoError(t, os.WriteFile(filepath.Join(modDir, "a.txt"), []byte("loose a"), 0o600))
	writeZip(t, filepath.Join(modDir, "cool.zip"), map[string]string{
		"b.txt":            "zip b",
		"new/added.txt":    "added",
		modInfoName:        "Cool Mod",
		idres.ManifestName: "new/added.txt=77",
	})

	args := []string{"mods", "-q", "--mod-dir", modDir, "--base-dir", baseDir}
	_, _, err := runCLI(t, args...)
	require.NoError(t, err)

	custom := filepath.Join(baseDir, "gameresources_002.pindex")
	require.FileExists(t, custom)
	require.FileExists(t, custom+customTokenSuffix)
	require.Equal(t, "loose a", string(readNamed(t, custom, "a.txt")))
	require.Equal(t, "zip b", string(readNamed(t, custom, "b.txt")))
	require.Equal(t, "added", string(readNamed(t, custom, "new/added.txt")))

	entries, err := idres.ListEntries(custom)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int32(77), entries[2].ID)
	for _, e := range entries {
		require.NotEqual(t, idres.ManifestName, e.Name())
		require.NotEqual(t, modInfoName, e.Name())
	}

	// A second run replaces the custom patch instead of stacking on it.
	_, _, err = runCLI(t, args...)
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(baseDir, "gameresources_003.pindex"))

	entries, err = idres.ListEntries(custom)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// No mods left: the custom patch goes away.
	require.NoError(t, os.Remove(filepath.Join(modDir, "a.txt")))
	require.NoError(t, os.Remove(filepath.Join(modDir, "cool.zip")))

	_, _, err = runCLI(t, args...)
	require.NoError(t, err)
	require.NoFileExists(t, custom)
	require.NoFileExists(t, custom+customTokenSuffix)
	require.NoFileExists(t, filepath.Join(baseDir, "gameresources_002.patch"))
}

func TestFilterRules(t *testing.T) {
	t.Parallel()

	require.Nil(t, filterRules(nil, nil))

	rules := filterRules(nil, []string{"*.tmp"})
	require.Len(t, rules, 2)
	require.Equal(t, "*", rules[0].Pattern)

	rules = filterRules([]string{"maps/**"}, []string{"*.tmp"})
	require.Len(t, rules, 2)
	require.Equal(t, "maps/**", rules[0].Pattern)

	require.Equal(t, filepath.Join("game", "base", "gameresources"), defaultExtractDir(filepath.Join("game", "base", "gameresources.index")))
}
