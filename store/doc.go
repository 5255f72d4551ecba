// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store implements the columnar on-disk database that backs a
// GroopM contig profile: hierarchical groups, typed tables, row-index
// alignment across tables, atomic replace-by-rename updates, a small filter
// expression language over the contigs table, and versioned metadata with
// forward-compatible upgrades.
//
// The container is a single file: the compressed, checksummed data block for
// each table, followed by a table-of-contents (opening with a magic and the
// container version) and an 8-byte trailer giving the table-of-contents'
// length. There are no sidecar
// files; an update replaces the whole file atomically (see ReplaceTable).
package store
