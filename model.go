// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

package idres

import (
	"strings"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	magicMarker     = 0x52455300 // "\x00SER" read little-endian, low byte is header version
	magicMask       = 0xFFFFFF00 // bits that must match magicMarker
	directoryOffset = 0x20       // entry count and records start here in index files
	blobAlignment   = 0x10       // payload alignment inside blobs
	baseBlobHeader  = 16         // version + marker + 12 reserved bytes
	patchBlobHeader = 4          // version + marker only
	maxPatchLevel   = 0xFF       // patch numbers are stored as one byte
	maxEntrySize    = 1<<31 - 1  // size fields are int32
	wideReservedMax = 4          // header versions up to this use an 8-byte reserved field
)

// Well-known names and extensions.
const (
	// IndexExt is the extension of base directory files.
	IndexExt = ".index"
	// PatchIndexExt is the extension of patch directory files.
	PatchIndexExt = ".pindex"
	// ManifestName is the ID override manifest read on rebuild and written on extract.
	ManifestName = "fileIds.txt"
	// DefaultFileType is the type tag of entries added without a ";type" suffix.
	DefaultFileType = "file"
	// patchMarker locates the base name inside numbered patch index names.
	patchMarker = "resources_"
)

// Default tuning values.
const (
	DefaultCopyBufferSize = 40 * 1024
	DefaultBackupKeep     = 0
)

// Entry describes one directory record.
type Entry struct {
	// FileType is the entry type tag ("file", "renderParm", ...).
	FileType string `json:"file_type" yaml:"file_type"`
	// AuxName is the secondary name, usually equal to FullName.
	AuxName string `json:"aux_name,omitempty" yaml:"aux_name,omitempty"`
	// FullName is the full asset path used as lookup key.
	FullName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	// Offset is the payload offset inside the blob selected by PatchFileNumber.
	Offset int64 `json:"offset" yaml:"offset"`
	// Reserved is the version-dependent trailing field, kept verbatim.
	Reserved int64 `json:"reserved,omitempty" yaml:"reserved,omitempty"`
	// ID is the caller-significant identifier, overridable through fileIds.txt.
	ID int32 `json:"id" yaml:"id"`
	// Size is the decompressed payload length.
	Size int32 `json:"size" yaml:"size"`
	// CompressedSize is the stored payload length.
	CompressedSize int32 `json:"compressed_size" yaml:"compressed_size"`
	// PatchFileNumber selects the blob that physically stores the payload.
	PatchFileNumber uint8 `json:"patch_file_number" yaml:"patch_file_number"`
}

// IsCompressed reports whether the payload is stored raw-deflated.
func (e *Entry) IsCompressed() bool {
	return e.Size != e.CompressedSize
}

// IsEmpty reports whether the entry carries no payload at all.
func (e *Entry) IsEmpty() bool {
	return e.Size == 0 && e.CompressedSize == 0
}

// Name returns FullName, falling back to AuxName and then FileType, with "/" separators.
func (e *Entry) Name() string {
	name := e.FullName
	if name == "" {
		name = e.AuxName
	}
	if name == "" {
		name = e.FileType
	}

	return strings.ReplaceAll(name, `\`, `/`)
}

// TypedName returns Name with a ";type" suffix for entries whose type is not "file".
func (e *Entry) TypedName() string {
	if e.FileType == DefaultFileType || e.FileType == "" {
		return e.Name()
	}

	return e.Name() + ";" + e.FileType
}

// RebuildEntryProgress contains one processed entry event from rebuild flow.
type RebuildEntryProgress struct {
	// Name is the entry name.
	Name string `json:"name" yaml:"name"`
	// Offset is payload offset in the written blob.
	Offset int64 `json:"offset" yaml:"offset"`
	// Written is number of payload bytes written.
	Written int64 `json:"written" yaml:"written"`
	// Replaced reports whether bytes came from the replacement folder.
	Replaced bool `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	// Added reports whether the entry was appended from the replacement folder.
	Added bool `json:"added,omitempty" yaml:"added,omitempty"`
}

// RebuildOptions configures Rebuild.
type RebuildOptions struct {
	// OnEntryDone is called after one entry payload was written to the new blob.
	OnEntryDone func(entry RebuildEntryProgress) `json:"-" yaml:"-"`
	// ReplaceFrom is an optional folder with replacement and new files.
	ReplaceFrom string `json:"replace_from,omitempty" yaml:"replace_from,omitempty"`
	// Exclude holds ordered rules; replacement files they exclude are ignored.
	Exclude []pathrules.Rule `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// ExcludeMatcherOptions control Exclude rule matching.
	ExcludeMatcherOptions pathrules.MatcherOptions `json:"exclude_matcher_options,omitzero" yaml:"exclude_matcher_options,omitzero"`
	// KeepCompressed copies stored bytes as-is instead of inflating compressed entries.
	KeepCompressed bool `json:"keep_compressed,omitempty" yaml:"keep_compressed,omitempty"`
}

// RebuildResult contains rebuild output statistics.
type RebuildResult struct {
	// BlobSize is the final length of the written blob.
	BlobSize int64 `json:"blob_size" yaml:"blob_size"`
	// Written is number of entries whose payload was written into the new blob.
	Written int `json:"written" yaml:"written"`
	// Inherited is number of entries left in earlier blobs.
	Inherited int `json:"inherited" yaml:"inherited"`
	// Replaced is number of existing entries replaced from folder.
	Replaced int `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	// Added is number of entries appended from folder.
	Added int `json:"added,omitempty" yaml:"added,omitempty"`
	// Unavailable is number of entries whose source blob could not be resolved.
	Unavailable int `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	// IDOverrides is number of IDs applied from fileIds.txt.
	IDOverrides int `json:"id_overrides,omitempty" yaml:"id_overrides,omitempty"`
	// ManifestWarnings is number of skipped fileIds.txt lines.
	ManifestWarnings int `json:"manifest_warnings,omitempty" yaml:"manifest_warnings,omitempty"`
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry Entry, written int64, outputPath string) `json:"-" yaml:"-"`
	// Filter holds ordered rules selecting entries by Name; empty means all.
	Filter []pathrules.Rule `json:"filter,omitempty" yaml:"filter,omitempty"`
	// FilterMatcherOptions control Filter rule matching.
	FilterMatcherOptions pathrules.MatcherOptions `json:"filter_matcher_options,omitzero" yaml:"filter_matcher_options,omitzero"`
	// Raw writes stored bytes without inflating compressed entries.
	Raw bool `json:"raw,omitempty" yaml:"raw,omitempty"`
	// SkipManifest disables writing fileIds.txt.
	SkipManifest bool `json:"skip_manifest,omitempty" yaml:"skip_manifest,omitempty"`
}

// ExtractResult contains extraction statistics.
type ExtractResult struct {
	// Extracted is number of entries written to disk.
	Extracted int `json:"extracted" yaml:"extracted"`
	// Skipped is number of empty, filtered, or unreachable entries.
	Skipped int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Bytes is total bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
	// ManifestPath is the written fileIds.txt path, empty when not written.
	ManifestPath string `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty"`
}

// EditOptions configures file-based Repack, DeleteEntries and CreatePatch flows.
// These flows copy stored compressed bytes as-is unless Inflate is set.
type EditOptions struct {
	// OnEntryDone is called after one entry payload was written to the new blob.
	OnEntryDone func(entry RebuildEntryProgress) `json:"-" yaml:"-"`
	// Options are applied when opening the index.
	Options []Option `json:"-" yaml:"-"`
	// Exclude holds ordered rules; replacement files they exclude are ignored.
	Exclude []pathrules.Rule `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// ExcludeMatcherOptions control Exclude rule matching.
	ExcludeMatcherOptions pathrules.MatcherOptions `json:"exclude_matcher_options,omitzero" yaml:"exclude_matcher_options,omitzero"`
	// BackupKeep controls how many blob backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<blob>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// Inflate stores compressed entries of the rebuilt level decompressed.
	// Repack honors it; DeleteEntries and CreatePatch always keep stored bytes.
	Inflate bool `json:"inflate,omitempty" yaml:"inflate,omitempty"`
	// PatchLevel is the patch number CreatePatch writes; 0 means latest level + 1.
	PatchLevel uint8 `json:"patch_level,omitempty" yaml:"patch_level,omitempty"`
}

// DeleteResult contains deletion statistics.
type DeleteResult struct {
	// Rebuild is nil when nothing was deleted.
	Rebuild *RebuildResult `json:"rebuild,omitempty" yaml:"rebuild,omitempty"`
	// Missing lists requested names that matched no entry.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	// Deleted is number of removed entries.
	Deleted int `json:"deleted" yaml:"deleted"`
}

// PatchResult contains patch creation output.
type PatchResult struct {
	// Rebuild holds statistics of the new patch blob.
	Rebuild *RebuildResult `json:"rebuild" yaml:"rebuild"`
	// IndexPath is the created patch index.
	IndexPath string `json:"index_path" yaml:"index_path"`
	// BlobPath is the created patch blob.
	BlobPath string `json:"blob_path" yaml:"blob_path"`
	// PatchLevel is the patch number of the created pair.
	PatchLevel uint8 `json:"patch_level" yaml:"patch_level"`
}

// applyDefaults fills zero-valued rebuild options with defaults.
func (opts *RebuildOptions) applyDefaults() {
	if opts.ExcludeMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.ExcludeMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.ExcludeMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.ExcludeMatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FilterMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.FilterMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.FilterMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.FilterMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	if opts.BackupKeep < 0 {
		opts.BackupKeep = DefaultBackupKeep
	}
}

// rebuildOptions derives rebuild settings for one file-based flow.
func (opts *EditOptions) rebuildOptions(replaceFrom string) RebuildOptions {
	return RebuildOptions{
		OnEntryDone:           opts.OnEntryDone,
		ReplaceFrom:           replaceFrom,
		Exclude:               opts.Exclude,
		ExcludeMatcherOptions: opts.ExcludeMatcherOptions,
		KeepCompressed:        !opts.Inflate,
	}
}
