// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import (
	"os"

	"github.com/grailbio/groopm/store/codec"
	"github.com/pkg/errors"
)

// Store is a handle on one groopm container file. It holds the parsed
// table-of-contents and the raw file bytes in memory; every lookup is
// satisfied from that in-memory copy, and every mutation goes through
// ReplaceTable, which stages a new file and renames it over path.
//
// Store is not safe for concurrent use by multiple goroutines without
// external synchronization, matching the donor's PamRecordReader/Writer
// pairing: callers that need concurrent readers should Open a fresh Store
// per goroutine.
type Store struct {
	path string
	data []byte
	toc  []tocEntry
}

// Create makes a brand-new, empty container at path: a meta table holding a
// zero-valued Meta (with FormatVersion set to CurrentFormatVersion), and
// empty contigs/bin/links tables. It refuses to overwrite an existing file.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("store: refusing to overwrite existing file %s", path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "store: checking for existing %s", path)
	}

	meta := Meta{FormatVersion: CurrentFormatVersion}
	tables := []tableImage{
		{Group: GroupMeta, Name: TableMeta, Schema: metaSchema(), Rows: []codec.Row{metaToRow(meta)}},
		{Group: GroupMeta, Name: TableContigs, Schema: contigsSchema()},
		{Group: GroupMeta, Name: TableBin, Schema: binSchema()},
		{Group: GroupLinks, Name: TableLinks, Schema: linksSchema()},
	}
	if err := writeContainer(path, tables); err != nil {
		return nil, errors.Wrapf(err, "store: creating %s", path)
	}
	return Open(path)
}

// CreationImage holds every table's initial content for CreateFull, assembled
// by a single createDB orchestration rather than built up through a sequence
// of ReplaceTable calls.
type CreationImage struct {
	KmerCols     []string
	KmerSigs     [][]float64
	KmerPC1      []float64
	KmerPC2      []float64
	Contigs      []ContigRow
	Bins         []BinRow
	CoverageCols []string
	Coverage     [][]float64
	Links        []LinkRow
	Meta         Meta
}

// CreateFull makes a brand-new container at path holding every table in img,
// written in the order kms, kpca, contigs, bin, coverage, links, meta — the
// order in which createDB's output becomes durable, with meta written last
// as the commit marker (see the concurrency model's ordering guarantee). It
// refuses to overwrite an existing file.
func CreateFull(path string, img CreationImage) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("store: refusing to overwrite existing file %s", path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "store: checking for existing %s", path)
	}

	kmsRows := make([]codec.Row, len(img.KmerSigs))
	for i, sig := range img.KmerSigs {
		kmsRows[i] = floatsToRow(sig)
	}
	kpcaRows := make([]codec.Row, len(img.KmerPC1))
	for i := range img.KmerPC1 {
		kpcaRows[i] = codec.Row{img.KmerPC1[i], img.KmerPC2[i]}
	}
	contigRows := make([]codec.Row, len(img.Contigs))
	for i, c := range img.Contigs {
		contigRows[i] = contigToRow(c)
	}
	binRows := make([]codec.Row, len(img.Bins))
	for i, b := range img.Bins {
		binRows[i] = binToRow(b)
	}
	coverageRows := make([]codec.Row, len(img.Coverage))
	for i, c := range img.Coverage {
		coverageRows[i] = floatsToRow(c)
	}
	linkRows := make([]codec.Row, len(img.Links))
	for i, l := range img.Links {
		linkRows[i] = linkToRow(l)
	}

	tables := []tableImage{
		{Group: GroupProfile, Name: TableKms, Schema: floatTableSchema(img.KmerCols), Rows: kmsRows},
		{Group: GroupProfile, Name: TableKpca, Schema: kpcaSchema(), Rows: kpcaRows},
		{Group: GroupMeta, Name: TableContigs, Schema: contigsSchema(), Rows: contigRows},
		{Group: GroupMeta, Name: TableBin, Schema: binSchema(), Rows: binRows},
		{Group: GroupProfile, Name: TableCoverage, Schema: floatTableSchema(img.CoverageCols), Rows: coverageRows},
		{Group: GroupLinks, Name: TableLinks, Schema: linksSchema(), Rows: linkRows},
		{Group: GroupMeta, Name: TableMeta, Schema: metaSchema(), Rows: []codec.Row{metaToRow(img.Meta)}},
	}
	if err := writeContainer(path, tables); err != nil {
		return nil, errors.Wrapf(err, "store: creating %s", path)
	}
	return Open(path)
}

// CreateLegacyV0 builds a container without a kpca table and with
// meta.FormatVersion written as 0, modeling a database produced before the 0->1 upgrade
// step was introduced. It exists to exercise and test that upgrade path;
// every current writer produces formatVersion 1 or later via CreateFull.
func CreateLegacyV0(path string, kmerCols []string, kmerSigs [][]float64, contigs []ContigRow, meta Meta) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("store: refusing to overwrite existing file %s", path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "store: checking for existing %s", path)
	}
	meta.FormatVersion = 0

	kmsRows := make([]codec.Row, len(kmerSigs))
	for i, sig := range kmerSigs {
		kmsRows[i] = floatsToRow(sig)
	}
	contigRows := make([]codec.Row, len(contigs))
	for i, c := range contigs {
		contigRows[i] = contigToRow(c)
	}

	tables := []tableImage{
		{Group: GroupProfile, Name: TableKms, Schema: floatTableSchema(kmerCols), Rows: kmsRows},
		{Group: GroupMeta, Name: TableContigs, Schema: contigsSchema(), Rows: contigRows},
		{Group: GroupMeta, Name: TableBin, Schema: binSchema()},
		{Group: GroupLinks, Name: TableLinks, Schema: linksSchema()},
		{Group: GroupMeta, Name: TableMeta, Schema: metaSchema(), Rows: []codec.Row{metaToRow(meta)}},
	}
	if err := writeContainer(path, tables); err != nil {
		return nil, errors.Wrapf(err, "store: creating %s", path)
	}
	return Open(path)
}

// Open opens an existing container at path, reading it fully into memory.
func Open(path string) (*Store, error) {
	data, toc, err := readContainerFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, data: data, toc: toc}, nil
}

// Close releases s's in-memory copy of the container. Store holds no open
// file handle between calls, so Close is a formality kept for symmetry with
// Create/Open and to allow a future implementation to hold a handle open.
func (s *Store) Close() error {
	s.data = nil
	s.toc = nil
	return nil
}

// Path returns the container file path s was opened from.
func (s *Store) Path() string { return s.path }

func (s *Store) find(group, name string) (tocEntry, bool) {
	for _, e := range s.toc {
		if e.Group == group && e.Name == name {
			return e, true
		}
	}
	return tocEntry{}, false
}

func (s *Store) readTable(group, name string) ([]codec.Row, codec.Schema, error) {
	e, ok := s.find(group, name)
	if !ok {
		return nil, codec.Schema{}, errors.Errorf("store: no such table %s/%s", group, name)
	}
	rows, err := decompressTable(readRawTable(s.data, e))
	if err != nil {
		return nil, codec.Schema{}, errors.Wrapf(err, "store: reading table %s/%s", group, name)
	}
	return rows, e.Schema, nil
}

// ReplaceTable atomically replaces the named table with newRows under
// schema, then reloads s from the rewritten file. On success s reflects the
// new container; on failure s is left exactly as it was (the rewrite is
// staged at a temp path and only renamed into place once it succeeds).
func (s *Store) ReplaceTable(group, name string, schema codec.Schema, newRows []codec.Row) error {
	if err := replaceContainer(s.path, group, name, schema, newRows); err != nil {
		return err
	}
	fresh, err := Open(s.path)
	if err != nil {
		return errors.Wrap(err, "store: reloading after replace")
	}
	*s = *fresh
	return nil
}

// ReadMeta returns the store's single metadata row.
func (s *Store) ReadMeta() (Meta, error) {
	rows, _, err := s.readTable(GroupMeta, TableMeta)
	if err != nil {
		return Meta{}, err
	}
	if len(rows) != 1 {
		return Meta{}, errors.Errorf("store: meta table has %d rows, want 1", len(rows))
	}
	return rowToMeta(rows[0]), nil
}

// ReplaceMeta atomically writes m as the store's new metadata row.
func (s *Store) ReplaceMeta(m Meta) error {
	return s.ReplaceTable(GroupMeta, TableMeta, metaSchema(), []codec.Row{metaToRow(m)})
}

// ReadContigs returns every row of the contigs table, in on-disk row order
// (the row index shared across the contigs/kms/kpca/coverage tables).
func (s *Store) ReadContigs() ([]ContigRow, error) {
	rows, _, err := s.readTable(GroupMeta, TableContigs)
	if err != nil {
		return nil, err
	}
	out := make([]ContigRow, len(rows))
	for i, r := range rows {
		out[i] = rowToContig(r)
	}
	return out, nil
}

// ReplaceContigs atomically writes rows as the new contigs table.
func (s *Store) ReplaceContigs(rows []ContigRow) error {
	crows := make([]codec.Row, len(rows))
	for i, r := range rows {
		crows[i] = contigToRow(r)
	}
	return s.ReplaceTable(GroupMeta, TableContigs, contigsSchema(), crows)
}

// ReadBins returns every row of the bin table.
func (s *Store) ReadBins() ([]BinRow, error) {
	rows, _, err := s.readTable(GroupMeta, TableBin)
	if err != nil {
		return nil, err
	}
	out := make([]BinRow, len(rows))
	for i, r := range rows {
		out[i] = rowToBin(r)
	}
	return out, nil
}

// ReplaceBins atomically writes rows as the new bin table.
func (s *Store) ReplaceBins(rows []BinRow) error {
	brows := make([]codec.Row, len(rows))
	for i, r := range rows {
		brows[i] = binToRow(r)
	}
	return s.ReplaceTable(GroupMeta, TableBin, binSchema(), brows)
}

// ReadLinks returns every row of the links table.
func (s *Store) ReadLinks() ([]LinkRow, error) {
	rows, _, err := s.readTable(GroupLinks, TableLinks)
	if err != nil {
		return nil, err
	}
	out := make([]LinkRow, len(rows))
	for i, r := range rows {
		out[i] = rowToLink(r)
	}
	return out, nil
}

// ReplaceLinks atomically writes rows as the new links table.
func (s *Store) ReplaceLinks(rows []LinkRow) error {
	lrows := make([]codec.Row, len(rows))
	for i, r := range rows {
		lrows[i] = linkToRow(r)
	}
	return s.ReplaceTable(GroupLinks, TableLinks, linksSchema(), lrows)
}

// ReadKmerSigs returns the kms table as one []float64 row per contig, along
// with its column names (the canonical k-mer columns, in column order).
func (s *Store) ReadKmerSigs() ([][]float64, []string, error) {
	rows, schema, err := s.readTable(GroupProfile, TableKms)
	if err != nil {
		return nil, nil, err
	}
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = c.Name
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = rowToFloats(r)
	}
	return out, cols, nil
}

// ReplaceKmerSigs atomically writes sigs (one row per contig) as the new kms
// table, with columns named by cols.
func (s *Store) ReplaceKmerSigs(cols []string, sigs [][]float64) error {
	rows := make([]codec.Row, len(sigs))
	for i, sig := range sigs {
		rows[i] = floatsToRow(sig)
	}
	return s.ReplaceTable(GroupProfile, TableKms, floatTableSchema(cols), rows)
}

// ReadCoverage returns the coverage table as one []float64 row per contig,
// along with its column names (one per BAM, in column order).
func (s *Store) ReadCoverage() ([][]float64, []string, error) {
	rows, schema, err := s.readTable(GroupProfile, TableCoverage)
	if err != nil {
		return nil, nil, err
	}
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = c.Name
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = rowToFloats(r)
	}
	return out, cols, nil
}

// ReplaceCoverage atomically writes cov (one row per contig) as the new
// coverage table, with columns named by cols.
func (s *Store) ReplaceCoverage(cols []string, cov [][]float64) error {
	rows := make([]codec.Row, len(cov))
	for i, c := range cov {
		rows[i] = floatsToRow(c)
	}
	return s.ReplaceTable(GroupProfile, TableCoverage, floatTableSchema(cols), rows)
}

// ReadKmerPCA returns the kpca table's PC1/PC2 columns, row-aligned with the
// contigs table. It returns nil, nil, nil if the store predates the kpca
// table (format version 0; see HasKmerPCA).
func (s *Store) ReadKmerPCA() (pc1, pc2 []float64, err error) {
	if !s.HasKmerPCA() {
		return nil, nil, nil
	}
	rows, _, err := s.readTable(GroupProfile, TableKpca)
	if err != nil {
		return nil, nil, err
	}
	pc1 = make([]float64, len(rows))
	pc2 = make([]float64, len(rows))
	for i, r := range rows {
		pc1[i] = r[0].(float64)
		pc2[i] = r[1].(float64)
	}
	return pc1, pc2, nil
}

// ReplaceKmerPCA atomically writes pc1/pc2 as the new kpca table. pc1 and
// pc2 must be the same length.
func (s *Store) ReplaceKmerPCA(pc1, pc2 []float64) error {
	if len(pc1) != len(pc2) {
		return errors.Errorf("store: ReplaceKmerPCA: pc1 has %d rows, pc2 has %d", len(pc1), len(pc2))
	}
	rows := make([]codec.Row, len(pc1))
	for i := range pc1 {
		rows[i] = codec.Row{pc1[i], pc2[i]}
	}
	return s.ReplaceTable(GroupProfile, TableKpca, kpcaSchema(), rows)
}

// HasKmerPCA reports whether the container has a kpca table, i.e. whether it
// has been upgraded past format version 0 (see Manager.CheckAndUpgrade in
// package datamgr).
func (s *Store) HasKmerPCA() bool {
	_, ok := s.find(GroupProfile, TableKpca)
	return ok
}
