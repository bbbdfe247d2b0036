// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/pathrules"
)

// ErrInvalidPattern means filter or exclude rules failed to compile.
var ErrInvalidPattern = errors.New("invalid path pattern")

// nameMatcher holds compiled path rules over entry names.
type nameMatcher struct {
	matcher *pathrules.Matcher
}

// newNameMatcher compiles rules. No usable rules yields a nil matcher.
func newNameMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*nameMatcher, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidPattern, err)
	}

	return &nameMatcher{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := NormalizeName(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// included reports whether name is selected by rules. A nil matcher selects everything.
func (m *nameMatcher) included(name string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	return m.matcher.Included(NormalizeName(name), false)
}

// replacementFile is one regular file found in the replacement folder.
type replacementFile struct {
	// rel is the slash path relative to the folder root, possibly with ";type".
	rel      string
	absPath  string
	consumed bool
}

// replacementFolder indexes replacement files by case-insensitive relative name.
type replacementFolder struct {
	byKey map[string]*replacementFile
	// manifest is the root fileIds.txt path, empty when absent.
	manifest string
	ordered  []*replacementFile
}

// scanReplacementFolder walks root and indexes its files. An empty root yields
// an empty folder. Files the rules do not include are ignored.
func scanReplacementFolder(root string, exclude []pathrules.Rule, opts pathrules.MatcherOptions, logger *slog.Logger) (*replacementFolder, error) {
	folder := &replacementFolder{byKey: make(map[string]*replacementFile)}
	if strings.TrimSpace(root) == "" {
		return folder, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat replacement folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("replacement folder %s is not a directory", root)
	}

	matcher, err := newNameMatcher(exclude, opts)
	if err != nil {
		return nil, err
	}

	if err := folder.walk(root, root, matcher, logger); err != nil {
		return nil, err
	}

	return folder, nil
}

// walk visits files of dir before its subdirectories, both in name order.
func (f *replacementFolder) walk(root, dir string, matcher *nameMatcher, logger *slog.Logger) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read replacement folder: %w", err)
	}

	var subdirs []string
	for _, item := range items {
		full := filepath.Join(dir, item.Name())
		if item.IsDir() {
			subdirs = append(subdirs, full)
			continue
		}
		if !item.Type().IsRegular() {
			continue
		}

		rel, err := relativeSlashPath(root, full)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", full, err)
		}

		if dir == root && strings.EqualFold(item.Name(), ManifestName) {
			f.manifest = full
			continue
		}

		if !matcher.included(rel) {
			logger.Debug("replacement excluded", slog.String("path", rel))
			continue
		}

		file := &replacementFile{rel: rel, absPath: full}
		key := nameKey(rel)
		if _, exists := f.byKey[key]; exists {
			logger.Warn("duplicate replacement name", slog.String("path", rel))
			continue
		}

		f.byKey[key] = file
		f.ordered = append(f.ordered, file)
	}

	for _, sub := range subdirs {
		if err := f.walk(root, sub, matcher, logger); err != nil {
			return err
		}
	}

	return nil
}

// lookup returns the replacement for e, preferring the "name;type" file.
func (f *replacementFolder) lookup(e *Entry) *replacementFile {
	if len(f.byKey) == 0 {
		return nil
	}

	name := e.Name()
	if e.FileType != "" {
		if file, ok := f.byKey[nameKey(name+";"+e.FileType)]; ok {
			return file
		}
	}

	return f.byKey[nameKey(name)]
}

// pending returns files no entry consumed, in walk order.
func (f *replacementFolder) pending() []*replacementFile {
	out := make([]*replacementFile, 0, len(f.ordered))
	for _, file := range f.ordered {
		if !file.consumed {
			out = append(out, file)
		}
	}

	return out
}
