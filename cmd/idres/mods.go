// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/pflag"

	"github.com/woozymasta/idres"
)

const (
	// customTokenSuffix marks patch indexes built by the mods command.
	customTokenSuffix = ".custom"
	customTokenText   = "idres token file: this patch was built from a mods folder and is rebuilt on every run, do not remove\n"
	modInfoName       = "modinfo.txt"
)

// patchIndexPattern matches "<prefix>gameresources_NNN.pindex".
var patchIndexPattern = regexp.MustCompile(`(?i)^(.*)gameresources_(\d+)\.pindex$`)

// modsConfig holds mods command settings.
type modsConfig struct {
	modDir  string
	baseDir string
	prefix  string
	keep    bool
}

func runMods(e *env, args []string) error {
	var common commonFlags
	var cfg modsConfig
	var edit editFlags
	flags := pflag.NewFlagSet("mods", pflag.ContinueOnError)
	edit.register(flags)
	flags.StringVar(&cfg.modDir, "mod-dir", "mods", "folder with loose mod files, mod folders and mod zips")
	flags.StringVar(&cfg.baseDir, "base-dir", "base", "game folder holding gameresources patch indexes")
	flags.StringVar(&cfg.prefix, "prefix", "", `resource prefix: "" for campaign, "mp_" or "snap_"`)
	flags.BoolVar(&cfg.keep, "keep-staging", false, "keep the staging folder for inspection")

	if _, err := e.parse(flags, &common, "mods [flags]", args, 0, 0); err != nil {
		return err
	}

	res, err := buildModPatch(e.logger, cfg, edit.options(e))
	if err != nil {
		return err
	}
	if res == nil {
		e.logger.Info("no mods found, custom patch removed", slog.String("mod_dir", cfg.modDir))
		return nil
	}

	logRebuild(e.logger, "custom patch created", res.Rebuild,
		slog.String("index", res.IndexPath),
		slog.Int("patch_level", int(res.PatchLevel)))
	return nil
}

// buildModPatch stages mods, drops the previous custom patch and creates a new
// one on top of the latest game patch. It returns nil when there are no mods.
func buildModPatch(logger *slog.Logger, cfg modsConfig, opts idres.EditOptions) (*idres.PatchResult, error) {
	if err := os.MkdirAll(cfg.modDir, 0o750); err != nil {
		return nil, fmt.Errorf("create mod dir: %w", err)
	}

	latest, level, err := findLatestPatch(cfg.baseDir, cfg.prefix)
	if err != nil {
		return nil, err
	}
	if level >= 0xFF {
		return nil, fmt.Errorf("%w: latest patch %s", idres.ErrPatchLevelOverflow, latest)
	}

	customLevel := uint8(level + 1) //nolint:gosec // bounded above
	customIndex := idres.PatchIndexPath(latest, customLevel)
	if err := removeCustomPatch(customIndex, idres.BlobPath(latest, customLevel)); err != nil {
		return nil, err
	}

	staging, err := os.MkdirTemp("", "idres-mods-")
	if err != nil {
		return nil, fmt.Errorf("create staging folder: %w", err)
	}
	if cfg.keep {
		logger.Info("staging folder kept", slog.String("path", staging))
	} else {
		defer func() { _ = os.RemoveAll(staging) }()
	}

	hasMods, err := stageMods(logger, cfg.modDir, staging)
	if err != nil {
		return nil, err
	}
	if !hasMods {
		return nil, nil
	}

	logger.Info("creating custom patch", slog.String("base", filepath.Base(latest)), slog.Int("patch_level", int(customLevel)))
	opts.PatchLevel = customLevel
	res, err := idres.CreatePatch(latest, staging, opts)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(res.IndexPath+customTokenSuffix, []byte(customTokenText), 0o644); err != nil {
		return nil, fmt.Errorf("write custom token: %w", err)
	}

	return res, nil
}

// findLatestPatch returns the highest numbered game patch index in baseDir.
// Indexes carrying a custom token are ignored.
func findLatestPatch(baseDir, prefix string) (string, int, error) {
	items, err := os.ReadDir(baseDir)
	if err != nil {
		return "", 0, fmt.Errorf("read base dir: %w", err)
	}

	latest := ""
	latestLevel := 0
	for _, item := range items {
		if item.IsDir() {
			continue
		}

		m := patchIndexPattern.FindStringSubmatch(item.Name())
		if m == nil || !strings.EqualFold(m[1], prefix) {
			continue
		}

		full := filepath.Join(baseDir, item.Name())
		if _, err := os.Stat(full + customTokenSuffix); err == nil {
			continue
		}
		if _, err := idres.ReadHeader(full); err != nil {
			continue
		}

		level, err := strconv.Atoi(m[2])
		if err != nil || level <= latestLevel {
			continue
		}

		latest, latestLevel = full, level
	}

	if latest == "" {
		return "", 0, fmt.Errorf("no %sgameresources_*.pindex found in %s", prefix, baseDir)
	}

	return latest, latestLevel, nil
}

// removeCustomPatch deletes a previous custom patch pair and its token.
func removeCustomPatch(indexPath, blobPath string) error {
	for _, p := range []string{indexPath, indexPath + customTokenSuffix, blobPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove previous custom patch: %w", err)
		}
	}

	return nil
}

// stageMods copies loose files and folders from modDir into staging, then
// unpacks every zip over them. fileIds.txt files are merged in that order.
func stageMods(logger *slog.Logger, modDir, staging string) (bool, error) {
	items, err := os.ReadDir(modDir)
	if err != nil {
		return false, fmt.Errorf("read mod dir: %w", err)
	}

	var zips []string
	for _, item := range items {
		src := filepath.Join(modDir, item.Name())
		dst := filepath.Join(staging, item.Name())
		switch {
		case item.IsDir():
			if err := copyTree(src, dst); err != nil {
				return false, err
			}
		case strings.EqualFold(filepath.Ext(item.Name()), ".zip"):
			zips = append(zips, src)
		default:
			if err := copyRegular(src, dst); err != nil {
				return false, err
			}
		}
	}

	if len(items) == 0 {
		return false, nil
	}

	idsPath := filepath.Join(staging, idres.ManifestName)
	var ids bytes.Buffer
	if err := takeFile(idsPath, &ids); err != nil {
		return false, err
	}

	infoPath := filepath.Join(staging, modInfoName)
	for _, zipPath := range zips {
		if err := unzipInto(zipPath, staging); err != nil {
			return false, err
		}

		var info bytes.Buffer
		if err := takeFile(infoPath, &info); err != nil {
			return false, err
		}

		name := strings.TrimSpace(info.String())
		if name == "" {
			name = filepath.Base(zipPath)
		}

		if err := takeFile(idsPath, &ids); err != nil {
			return false, err
		}

		logger.Info("mod staged", slog.String("mod", name))
	}

	if ids.Len() > 0 {
		if err := os.WriteFile(idsPath, ids.Bytes(), 0o644); err != nil {
			return false, fmt.Errorf("write merged %s: %w", idres.ManifestName, err)
		}
	}

	return true, nil
}

// takeFile appends path content to buf on its own lines and removes the file.
func takeFile(path string, buf *bytes.Buffer) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.Write(data)

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

// unzipInto extracts regular files of a zip under dst, overwriting earlier mods.
func unzipInto(zipPath, dst string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open mod zip %s: %w", zipPath, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := filepath.FromSlash(strings.ReplaceAll(f.Name, `\`, `/`))
		if !filepath.IsLocal(name) {
			return fmt.Errorf("mod zip %s: unsafe entry %q", zipPath, f.Name)
		}

		if err := unzipFile(f, filepath.Join(dst, name)); err != nil {
			return fmt.Errorf("mod zip %s: %w", zipPath, err)
		}
	}

	return nil
}

// unzipFile writes one zip member to outPath.
func unzipFile(f *zip.File, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}

	return out.Close()
}

// copyTree copies a folder recursively.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		return copyRegular(path, target)
	})
}

// copyRegular copies one file.
func copyRegular(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}
