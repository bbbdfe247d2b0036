// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NormalizeName converts an entry or relative file name to slash-separated form.
// It trims spaces, accepts both "/" and "\", and removes leading "./" and "/".
func NormalizeName(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	return strings.TrimLeft(raw, "/")
}

// SameName reports whether two entry names refer to the same asset.
// Separators are normalized and letter case is ignored.
func SameName(a, b string) bool {
	return nameKey(a) == nameKey(b)
}

// nameKey returns case-insensitive map key for an entry name.
func nameKey(name string) string {
	return strings.ToLower(NormalizeName(name))
}

// SplitTypedName splits "name;type" into name and type; type defaults to "file".
func SplitTypedName(raw string) (string, string) {
	idx := strings.IndexByte(raw, ';')
	if idx < 0 {
		return raw, DefaultFileType
	}

	return raw[:idx], raw[idx+1:]
}

// isIndexPath reports whether path has one of the directory file extensions.
func isIndexPath(indexPath string) bool {
	ext := filepath.Ext(indexPath)
	return ext == IndexExt || ext == PatchIndexExt
}

// baseIndexPath maps a numbered patch index to the base index it extends.
// Names without the patch marker are their own base.
func baseIndexPath(indexPath string) string {
	dir, file := filepath.Split(indexPath)
	idx := strings.Index(file, patchMarker)
	if idx < 0 {
		return indexPath
	}

	// Keep "resources", drop the "_NNN" suffix.
	return dir + file[:idx+len(patchMarker)-1] + IndexExt
}

// BlobPath returns the blob path for patch number p of the chain indexPath belongs to.
func BlobPath(indexPath string, p uint8) string {
	base := baseIndexPath(indexPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch p {
	case 0:
		return stem + ".resources"
	case 1:
		return stem + ".patch"
	default:
		return fmt.Sprintf("%s_%03d.patch", stem, p)
	}
}

// PatchIndexPath returns the directory file path paired with blob p.
func PatchIndexPath(indexPath string, p uint8) string {
	blob := BlobPath(indexPath, p)
	if p == 0 {
		return strings.TrimSuffix(blob, filepath.Ext(blob)) + IndexExt
	}

	return strings.TrimSuffix(blob, filepath.Ext(blob)) + PatchIndexExt
}

// relativeSlashPath returns rel path of file under root with "/" separators.
func relativeSlashPath(root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}

	return path.Clean(filepath.ToSlash(rel)), nil
}
