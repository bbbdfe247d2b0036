// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

/*
Package idres reads, extracts, rebuilds and patches id Tech resource archives
as shipped with DOOM (2016). An archive is a directory file (.index for the
base chain, .pindex for patches) plus a chain of payload blobs:

	gameresources.resources      patch 0
	gameresources.patch          patch 1
	gameresources_002.patch      patch 2 and up

Every directory entry names the blob that physically stores its payload, so a
patch directory can override a handful of entries while the rest keep pointing
at earlier blobs. Payloads are stored raw or raw-deflated (no zlib header).

# Reading

	x, err := idres.Open("base/gameresources_005.pindex", idres.WithLogger(logger))
	if err != nil {
	    return err
	}
	defer x.Close()
	for _, e := range x.Entries() {
	    if e.IsEmpty() {
	        continue
	    }
	    if _, err := x.CopyEntryData(e, os.Stdout, true); err != nil {
	        return err
	    }
	}

Blobs that are missing or carry a bad magic are not fatal; entries stored in
them report ErrBlobUnavailable. Short payloads are logged and kept unless
WithStrictDecompression is set.

# Extracting

Extract writes each entry at its name, adding ";type" for entries whose type
is not "file", and records IDs in fileIds.txt:

	res, err := x.Extract("out", idres.ExtractOptions{
	    Filter: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "generated/decls/**"}},
	})

# Rebuilding and patching

Rebuild writes a fresh blob for the current patch level. Files in the
replacement folder replace entries with the same name (case-insensitive,
"name;type" preferred), files matching no entry are appended, and a root
fileIds.txt overrides IDs. Repack, DeleteEntries and CreatePatch wrap it in a
temp-then-rename transaction:

	if _, err := idres.CreatePatch("base/gameresources_005.pindex", "mods", idres.EditOptions{}); err != nil {
	    return err
	}

Index values are not safe for concurrent use.
*/
package idres
