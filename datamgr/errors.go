// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package datamgr

// Error kinds returned by package datamgr. None of datamgr's own logic
// recovers an underlying error from kmer/encoding/contigio/encoding/bamagg/
// store; it only classifies and wraps it into one of these kinds before
// returning to the caller.

// ParseError wraps a malformed FASTA/FASTQ framing error from
// encoding/contigio.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "datamgr: parsing " + e.Path + ": " + e.Err.Error()
}
func (e *ParseError) Unwrap() error { return e.Err }

// BamOpenError wraps a failure to open or read a BAM file.
type BamOpenError struct {
	Path string
	Err  error
}

func (e *BamOpenError) Error() string {
	return "datamgr: opening BAM " + e.Path + ": " + e.Err.Error()
}
func (e *BamOpenError) Unwrap() error { return e.Err }

// StoreError wraps a schema violation, missing group/table, or failed
// container open.
type StoreError struct {
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return "datamgr: store " + e.Path + ": " + e.Err.Error()
}
func (e *StoreError) Unwrap() error { return e.Err }

// UpgradeError reports that the upgrade sequence could not progress,
// typically because a source table the upgrade step depends on is missing.
type UpgradeError struct {
	Path string
	Err  error
}

func (e *UpgradeError) Error() string {
	return "datamgr: upgrading " + e.Path + ": " + e.Err.Error()
}
func (e *UpgradeError) Unwrap() error { return e.Err }

// OverwriteRefused reports that createDB's target path already exists and
// force was not set.
type OverwriteRefused struct {
	Path string
}

func (e *OverwriteRefused) Error() string {
	return "datamgr: refusing to overwrite existing database " + e.Path + " (force not set)"
}
