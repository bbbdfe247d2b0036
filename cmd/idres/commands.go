// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/woozymasta/pathrules"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/idres"
)

// Output formats of the list command.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// listing is the structured list output.
type listing struct {
	Index         string        `json:"index" yaml:"index"`
	Entries       []idres.Entry `json:"entries" yaml:"entries"`
	IndexSize     int32         `json:"index_size" yaml:"index_size"`
	HeaderVersion uint8         `json:"header_version" yaml:"header_version"`
	PatchLevel    uint8         `json:"patch_level" yaml:"patch_level"`
}

func runList(e *env, args []string) error {
	var common commonFlags
	var format string
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")

	rest, err := e.parse(fs, &common, "list [flags] <index>", args, 1, 1)
	if err != nil {
		return err
	}

	x, err := idres.Open(rest[0], idres.WithLogger(e.logger), idres.WithReadOnly())
	if err != nil {
		return err
	}
	defer func() { _ = x.Close() }()

	out := listing{
		Index:         x.Path(),
		HeaderVersion: x.HeaderVersion(),
		IndexSize:     x.IndexSize(),
		PatchLevel:    x.PatchLevel(),
		Entries:       x.Entries(),
	}

	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case formatYAML:
		enc := yaml.NewEncoder(e.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}

		return enc.Close()
	case formatText:
		return writeListText(e.stdout, out)
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, format)
	}
}

// writeListText writes a tab-aligned entry table.
func writeListText(w io.Writer, out listing) error {
	fmt.Fprintf(w, "%s: version %d, patch level %d, %d entries\n", out.Index, out.HeaderVersion, out.PatchLevel, len(out.Entries))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATCH\tSIZE\tSTORED\tTYPE\tNAME")
	for _, entry := range out.Entries {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.PatchFileNumber,
			humanize.IBytes(uint64(max(entry.Size, 0))),
			humanize.IBytes(uint64(max(entry.CompressedSize, 0))),
			entry.FileType,
			entry.Name())
	}

	return tw.Flush()
}

func runExtract(e *env, args []string) error {
	var common commonFlags
	var (
		include      []string
		exclude      []string
		raw          bool
		skipManifest bool
		strict       bool
	)
	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	fs.StringArrayVarP(&include, "include", "i", nil, "only extract entries matching pattern (repeatable)")
	fs.StringArrayVarP(&exclude, "exclude", "x", nil, "skip entries matching pattern (repeatable)")
	fs.BoolVar(&raw, "raw", false, "write stored bytes without inflating")
	fs.BoolVar(&skipManifest, "no-ids", false, "do not write fileIds.txt")
	fs.BoolVar(&strict, "strict", false, "fail on short or corrupt payloads")

	rest, err := e.parse(fs, &common, "extract [flags] <index> [dest]", args, 1, 2)
	if err != nil {
		return err
	}

	indexPath := rest[0]
	dest := defaultExtractDir(indexPath)
	if len(rest) > 1 {
		dest = rest[1]
	}

	opts := []idres.Option{idres.WithLogger(e.logger), idres.WithReadOnly()}
	if strict {
		opts = append(opts, idres.WithStrictDecompression())
	}

	x, err := idres.Open(indexPath, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = x.Close() }()

	res, err := x.Extract(dest, idres.ExtractOptions{
		Filter:       filterRules(include, exclude),
		Raw:          raw,
		SkipManifest: skipManifest,
		OnEntryDone: func(entry idres.Entry, written int64, outputPath string) {
			e.logger.Debug("extracted", slog.String("name", entry.TypedName()), slog.String("size", humanize.IBytes(uint64(written))))
		},
	})
	if err != nil {
		return err
	}

	e.logger.Info("extract done",
		slog.String("dest", dest),
		slog.Int("extracted", res.Extracted),
		slog.Int("skipped", res.Skipped),
		slog.String("bytes", humanize.IBytes(uint64(res.Bytes))))
	return nil
}

// defaultExtractDir derives "<dir>/<stem>" next to the index file.
func defaultExtractDir(indexPath string) string {
	base := filepath.Base(indexPath)
	return filepath.Join(filepath.Dir(indexPath), strings.TrimSuffix(base, filepath.Ext(base)))
}

// filterRules builds extraction rules. Without includes every entry is
// selected, so a catch-all include comes first.
func filterRules(include, exclude []string) []pathrules.Rule {
	if len(include) == 0 && len(exclude) == 0 {
		return nil
	}

	rules := make([]pathrules.Rule, 0, len(include)+len(exclude)+1)
	if len(include) == 0 {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: "*"})
	}
	for _, pattern := range include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return rules
}

// excludeRules builds replacement folder rules.
func excludeRules(exclude []string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(exclude))
	for _, pattern := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return rules
}

// editFlags are shared by commands that rewrite a blob.
type editFlags struct {
	exclude    []string
	backupKeep int
}

func (f *editFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.exclude, "exclude", "x", nil, "ignore folder files matching pattern (repeatable)")
	fs.IntVar(&f.backupKeep, "backup-keep", idres.DefaultBackupKeep, "blob backup generations to keep")
}

func (f *editFlags) options(e *env) idres.EditOptions {
	return idres.EditOptions{
		Options:    []idres.Option{idres.WithLogger(e.logger)},
		Exclude:    excludeRules(f.exclude),
		BackupKeep: f.backupKeep,
		OnEntryDone: func(entry idres.RebuildEntryProgress) {
			e.logger.Debug("written",
				slog.String("name", entry.Name),
				slog.Int64("offset", entry.Offset),
				slog.Bool("replaced", entry.Replaced),
				slog.Bool("added", entry.Added))
		},
	}
}

func runRepack(e *env, args []string) error {
	var common commonFlags
	var edit editFlags
	var inflate bool
	fs := pflag.NewFlagSet("repack", pflag.ContinueOnError)
	edit.register(fs)
	fs.BoolVar(&inflate, "inflate", false, "store compressed entries of the rebuilt level decompressed")

	rest, err := e.parse(fs, &common, "repack [flags] <index> <folder>", args, 2, 2)
	if err != nil {
		return err
	}

	opts := edit.options(e)
	opts.Inflate = inflate
	res, err := idres.Repack(rest[0], rest[1], opts)
	if err != nil {
		return err
	}

	logRebuild(e.logger, "repack done", res)
	return nil
}

func runCreatePatch(e *env, args []string) error {
	var common commonFlags
	var edit editFlags
	var level uint8
	fs := pflag.NewFlagSet("create-patch", pflag.ContinueOnError)
	edit.register(fs)
	fs.Uint8Var(&level, "level", 0, "patch number to create (default: latest + 1)")

	rest, err := e.parse(fs, &common, "create-patch [flags] <latest-index> <folder>", args, 2, 2)
	if err != nil {
		return err
	}

	opts := edit.options(e)
	opts.PatchLevel = level
	res, err := idres.CreatePatch(rest[0], rest[1], opts)
	if err != nil {
		return err
	}

	logRebuild(e.logger, "patch created", res.Rebuild,
		slog.String("index", res.IndexPath),
		slog.Int("patch_level", int(res.PatchLevel)))
	return nil
}

func runDelete(e *env, args []string) error {
	var common commonFlags
	var edit editFlags
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	edit.register(fs)

	rest, err := e.parse(fs, &common, "delete [flags] <index> <name>...", args, 2, -1)
	if err != nil {
		return err
	}

	res, err := idres.DeleteEntries(rest[0], rest[1:], edit.options(e))
	if err != nil {
		return err
	}

	e.logger.Info("delete done", slog.Int("deleted", res.Deleted), slog.Int("missing", len(res.Missing)))
	if res.Rebuild != nil {
		logRebuild(e.logger, "blob rebuilt", res.Rebuild)
	}

	return nil
}

// logRebuild logs rebuild statistics.
func logRebuild(logger *slog.Logger, msg string, res *idres.RebuildResult, extra ...any) {
	attrs := append([]any{
		slog.Int("written", res.Written),
		slog.Int("inherited", res.Inherited),
		slog.Int("replaced", res.Replaced),
		slog.Int("added", res.Added),
		slog.Int("id_overrides", res.IDOverrides),
		slog.String("blob_size", humanize.IBytes(uint64(max(res.BlobSize, 0)))),
	}, extra...)
	if res.Unavailable > 0 {
		attrs = append(attrs, slog.Int("unavailable", res.Unavailable))
	}

	logger.Info(msg, attrs...)
}
