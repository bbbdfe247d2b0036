// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// IDOverride is one parsed `name=id` manifest line.
type IDOverride struct {
	Name string `json:"name" yaml:"name"`
	Line int    `json:"line" yaml:"line"`
	ID   int32  `json:"id" yaml:"id"`
}

// ParseManifest reads `name=id` lines. The last "=" separates name from id and
// both sides are trimmed. Blank lines are ignored; malformed lines are
// returned as warnings wrapping ErrInvalidManifestLine and do not stop parsing.
func ParseManifest(r io.Reader) ([]IDOverride, []error, error) {
	var (
		overrides []IDOverride
		warnings  []error
	)

	br := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return overrides, warnings, fmt.Errorf("read manifest: %w", readErr)
		}
		if readErr == io.EOF && raw == "" {
			break
		}

		lineNo++
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		sep := strings.LastIndexByte(line, '=')
		if sep < 0 {
			warnings = append(warnings, fmt.Errorf("%w: line %d: missing '='", ErrInvalidManifestLine, lineNo))
			continue
		}

		name := NormalizeName(line[:sep])
		if len(name) > maxRecordStringLen {
			warnings = append(warnings, fmt.Errorf("%w: line %d: name of %d bytes is too long", ErrInvalidManifestLine, lineNo, len(name)))
			continue
		}

		rawID := strings.TrimSpace(line[sep+1:])
		id, err := strconv.ParseInt(rawID, 10, 32)
		if err != nil || name == "" {
			warnings = append(warnings, fmt.Errorf("%w: line %d: %s has invalid id %q", ErrInvalidManifestLine, lineNo, name, rawID))
			continue
		}

		overrides = append(overrides, IDOverride{Name: name, ID: int32(id), Line: lineNo})
	}

	return overrides, warnings, nil
}

// applyManifestFile applies ID overrides from manifestPath to entries by exact
// name, normalized the same way on both sides.
// It returns number of applied overrides and number of skipped lines.
func applyManifestFile(entries []Entry, manifestPath string, logger *slog.Logger) (int, int, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	overrides, warnings, err := ParseManifest(f)
	if err != nil {
		return 0, 0, err
	}

	for _, w := range warnings {
		logger.Warn("skip manifest line", slog.String("path", manifestPath), slog.Any("error", w))
	}

	byName := make(map[string]int, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		byName[NormalizeName(entries[i].Name())] = i
	}

	applied := 0
	skipped := len(warnings)
	for _, o := range overrides {
		idx, ok := byName[o.Name]
		if !ok {
			logger.Warn("manifest names unknown entry",
				slog.String("name", o.Name),
				slog.Int("line", o.Line))
			skipped++
			continue
		}

		entries[idx].ID = o.ID
		applied++
	}

	return applied, skipped, nil
}

// writeManifest writes one `name=id` line per entry.
func writeManifest(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}

	w := bufio.NewWriter(f)
	for i := range entries {
		if _, err := fmt.Fprintf(w, "%s=%d\n", entries[i].Name(), entries[i].ID); err != nil {
			_ = f.Close()
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush manifest: %w", err)
	}

	return f.Close()
}
