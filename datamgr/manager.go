// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package datamgr orchestrates GroopM database creation, reads, targeted
// updates, schema upgrade, and dump, enforcing the row-index alignment
// invariant shared by the contigs/kms/kpca/coverage tables.
package datamgr

import (
	"os"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/groopm/encoding/bamagg"
	"github.com/grailbio/groopm/encoding/contigio"
	"github.com/grailbio/groopm/kmer"
	"github.com/grailbio/groopm/store"
	"github.com/pkg/errors"
)

// RowIndex identifies a row shared across the contigs/kms/kpca/coverage
// tables; row indices are assigned once at creation time by sorting contig
// names ascending, and are immutable thereafter.
type RowIndex int

// Manager holds no mutable state beyond the DB path it was constructed
// with; every method opens the store, acts, and closes it, consistent with
// the single-writer, no-async-interface model.
type Manager struct {
	dbPath string
}

// New returns a Manager bound to the database at dbPath. It does not open
// the file; the path need not yet exist (see CreateDB).
func New(dbPath string) *Manager {
	return &Manager{dbPath: dbPath}
}

func (m *Manager) open() (*store.Store, error) {
	s, err := store.Open(m.dbPath)
	if err != nil {
		return nil, &StoreError{Path: m.dbPath, Err: err}
	}
	return s, nil
}

// CreateDB builds a new database at m's path from contigsPath (a FASTA/FASTQ
// file) and bamPaths, using k-mer word length k. It refuses to overwrite an
// existing file unless force is set. On any failure mid-creation the
// partially written file is left in place for inspection; CreateDB does not
// attempt to delete it.
func (m *Manager) CreateDB(bamPaths []string, contigsPath string, k int, force bool) error {
	if _, err := os.Stat(m.dbPath); err == nil {
		if !force {
			return &OverwriteRefused{Path: m.dbPath}
		}
		if err := os.Remove(m.dbPath); err != nil {
			return &StoreError{Path: m.dbPath, Err: errors.Wrap(err, "removing existing database before overwrite")}
		}
	} else if !os.IsNotExist(err) {
		return &StoreError{Path: m.dbPath, Err: err}
	}

	f, err := os.Open(contigsPath)
	if err != nil {
		return &ParseError{Path: contigsPath, Err: err}
	}
	defer f.Close()

	eng := kmer.New(k)
	cs, err := contigio.Read(f, eng)
	if err != nil {
		return &ParseError{Path: contigsPath, Err: err}
	}
	if err := cs.ComputePCA(); err != nil {
		return &ParseError{Path: contigsPath, Err: err}
	}

	bamContigs := &bamagg.ContigSet{Names: cs.Names, Lengths: cs.Lengths}
	results, err := bamagg.Aggregate(bamPaths, bamContigs)
	if err != nil {
		return &BamOpenError{Path: strings.Join(bamPaths, ","), Err: err}
	}

	n := len(cs.Names)
	contigRows := make([]store.ContigRow, n)
	for i, name := range cs.Names {
		contigRows[i] = store.ContigRow{Cid: name, Bid: 0, Length: int32(cs.Lengths[i])}
	}

	coverageCols := make([]string, len(results))
	coverage := make([][]float64, n)
	for i := range coverage {
		coverage[i] = make([]float64, len(results))
	}
	var links []store.LinkRow
	for col, r := range results {
		coverageCols[col] = r.ColumnName
		for row, v := range r.Coverage {
			coverage[row][col] = v
		}
		for _, l := range r.Links {
			links = append(links, store.LinkRow{
				Contig1: int32(l.Contig1), Contig2: int32(l.Contig2),
				NumReads: int32(l.NumReads), LinkType: int32(l.LinkType), Gap: int32(l.Gap),
			})
		}
	}

	meta := store.Meta{
		StoitColNames: strings.Join(coverageCols, ","),
		NumStoits:     int32(len(coverageCols)),
		MerColNames:   strings.Join(eng.Columns(), ","),
		MerSize:       int32(k),
		NumMers:       int32(len(eng.Columns())),
		NumCons:       int32(n),
		NumBins:       0,
		FormatVersion: store.CurrentFormatVersion,
	}

	img := store.CreationImage{
		KmerCols:     eng.Columns(),
		KmerSigs:     cs.KmerSigs,
		KmerPC1:      cs.PC1,
		KmerPC2:      cs.PC2,
		Contigs:      contigRows,
		Bins:         nil,
		CoverageCols: coverageCols,
		Coverage:     coverage,
		Links:        links,
		Meta:         meta,
	}
	s, err := store.CreateFull(m.dbPath, img)
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	return s.Close()
}

// CheckAndUpgrade reads meta.formatVersion (an absent field reads as 0) and
// applies upgrade steps in strict ascending order until the store reaches
// store.CurrentFormatVersion. SelectIndices calls this first; the other
// readers below do not.
func (m *Manager) CheckAndUpgrade() error {
	s, err := m.open()
	if err != nil {
		return err
	}
	defer s.Close()

	meta, err := s.ReadMeta()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	for meta.FormatVersion < store.CurrentFormatVersion {
		switch meta.FormatVersion {
		case 0:
			if err := m.upgrade0to1(s, meta); err != nil {
				return &UpgradeError{Path: m.dbPath, Err: err}
			}
		default:
			return &UpgradeError{Path: m.dbPath, Err: errors.Errorf("no upgrade step registered from version %d", meta.FormatVersion)}
		}
		meta, err = s.ReadMeta()
		if err != nil {
			return &StoreError{Path: m.dbPath, Err: err}
		}
	}
	return nil
}

// upgrade0to1 computes the kpca table from the existing kms table and bumps
// formatVersion to 1. numCons is read from meta rather than recomputed, per
// the corrected intent of the source's version-0 upgrade step.
func (m *Manager) upgrade0to1(s *store.Store, meta store.Meta) error {
	log.Printf("datamgr: upgrading %s from format version 0 to 1", m.dbPath)
	sigs, _, err := s.ReadKmerSigs()
	if err != nil {
		return errors.Wrap(err, "reading kms table for kpca upgrade")
	}
	if int32(len(sigs)) != meta.NumCons {
		return errors.Errorf("kms has %d rows, meta.numCons says %d", len(sigs), meta.NumCons)
	}
	cs := &contigio.ContigSet{KmerSigs: sigs}
	if err := cs.ComputePCA(); err != nil {
		return errors.Wrap(err, "computing kpca")
	}
	if err := s.ReplaceKmerPCA(cs.PC1, cs.PC2); err != nil {
		return errors.Wrap(err, "writing kpca table")
	}
	meta.FormatVersion = 1
	if err := s.ReplaceMeta(meta); err != nil {
		return errors.Wrap(err, "bumping formatVersion")
	}
	return nil
}

// SelectIndices returns the row indices of contigs satisfying predicate, in
// ascending row order. A nil predicate (store.All) selects every row.
func (m *Manager) SelectIndices(predicate *store.Predicate) ([]RowIndex, error) {
	if err := m.CheckAndUpgrade(); err != nil {
		return nil, err
	}
	s, err := m.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if predicate == nil {
		predicate = store.All
	}
	rows, err := s.ReadContigs()
	if err != nil {
		return nil, &StoreError{Path: m.dbPath, Err: err}
	}
	var out []RowIndex
	for i, row := range rows {
		if predicate.Match(row) {
			out = append(out, RowIndex(i))
		}
	}
	return out, nil
}

// Coverage returns the coverage values of the selected rows, aligned to
// indices' order.
func (m *Manager) Coverage(indices []RowIndex) ([][]float64, []string, error) {
	s, err := m.open()
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	cov, cols, err := s.ReadCoverage()
	if err != nil {
		return nil, nil, &StoreError{Path: m.dbPath, Err: err}
	}
	return selectFloatRows(cov, indices), cols, nil
}

// KmerSigs returns the k-mer signature values of the selected rows, aligned
// to indices' order.
func (m *Manager) KmerSigs(indices []RowIndex) ([][]float64, []string, error) {
	s, err := m.open()
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	sigs, cols, err := s.ReadKmerSigs()
	if err != nil {
		return nil, nil, &StoreError{Path: m.dbPath, Err: err}
	}
	return selectFloatRows(sigs, indices), cols, nil
}

// KmerPCAs returns the (pc1, pc2) pairs of the selected rows, aligned to
// indices' order.
func (m *Manager) KmerPCAs(indices []RowIndex) (pc1, pc2 []float64, err error) {
	s, err := m.open()
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	allPC1, allPC2, err := s.ReadKmerPCA()
	if err != nil {
		return nil, nil, &StoreError{Path: m.dbPath, Err: err}
	}
	pc1 = make([]float64, len(indices))
	pc2 = make([]float64, len(indices))
	for i, idx := range indices {
		pc1[i] = allPC1[idx]
		pc2[i] = allPC2[idx]
	}
	return pc1, pc2, nil
}

// ContigNames returns the cid values of the selected rows, aligned to
// indices' order.
func (m *Manager) ContigNames(indices []RowIndex) ([]string, error) {
	rows, err := m.readContigs()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = rows[idx].Cid
	}
	return out, nil
}

// ContigLengths returns the length values of the selected rows, aligned to
// indices' order.
func (m *Manager) ContigLengths(indices []RowIndex) ([]int32, error) {
	rows, err := m.readContigs()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(indices))
	for i, idx := range indices {
		out[i] = rows[idx].Length
	}
	return out, nil
}

// Bins returns the bid values of the selected rows, aligned to indices'
// order.
func (m *Manager) Bins(indices []RowIndex) ([]int32, error) {
	rows, err := m.readContigs()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(indices))
	for i, idx := range indices {
		out[i] = rows[idx].Bid
	}
	return out, nil
}

// BinIDs is a convenience accessor equivalent to Bins, returning the bid of
// each selected row without requiring the caller to separately fetch and zip
// ContigNames/Bins.
func (m *Manager) BinIDs(indices []RowIndex) ([]int32, error) {
	return m.Bins(indices)
}

func (m *Manager) readContigs() ([]store.ContigRow, error) {
	s, err := m.open()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	rows, err := s.ReadContigs()
	if err != nil {
		return nil, &StoreError{Path: m.dbPath, Err: err}
	}
	return rows, nil
}

func selectFloatRows(all [][]float64, indices []RowIndex) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = all[idx]
	}
	return out
}

// SetBinAssignments applies updates (row index -> new bid) to the contigs
// table: it reads the current (cid, bid, length) tuples, applies updates,
// and writes the whole table back via atomic replace.
func (m *Manager) SetBinAssignments(updates map[RowIndex]int32) error {
	s, err := m.open()
	if err != nil {
		return err
	}
	defer s.Close()
	rows, err := s.ReadContigs()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	for idx, bid := range updates {
		if int(idx) < 0 || int(idx) >= len(rows) {
			return &StoreError{Path: m.dbPath, Err: errors.Errorf("row index %d out of range [0,%d)", idx, len(rows))}
		}
		rows[idx].Bid = bid
	}
	if err := s.ReplaceContigs(rows); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	return nil
}

// NukeBins resets bid to 0 for every contig row, empties the bin table, and
// sets meta.numBins to 0. The row count of contigs is unchanged.
func (m *Manager) NukeBins() error {
	s, err := m.open()
	if err != nil {
		return err
	}
	defer s.Close()
	rows, err := s.ReadContigs()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	for i := range rows {
		rows[i].Bid = 0
	}
	if err := s.ReplaceContigs(rows); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	if err := s.ReplaceBins(nil); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	meta, err := s.ReadMeta()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	meta.NumBins = 0
	if err := s.ReplaceMeta(meta); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	return nil
}

// SetBinStats replaces the bin table with rows and updates meta.numBins to
// len(rows).
func (m *Manager) SetBinStats(rows []store.BinRow) error {
	s, err := m.open()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.ReplaceBins(rows); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	meta, err := s.ReadMeta()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	meta.NumBins = int32(len(rows))
	if err := s.ReplaceMeta(meta); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	return nil
}

// Meta returns the store's metadata row.
func (m *Manager) Meta() (store.Meta, error) {
	s, err := m.open()
	if err != nil {
		return store.Meta{}, err
	}
	defer s.Close()
	meta, err := s.ReadMeta()
	if err != nil {
		return store.Meta{}, &StoreError{Path: m.dbPath, Err: err}
	}
	return meta, nil
}

// SetClustered sets the meta.clustered workflow flag.
func (m *Manager) SetClustered(v bool) error {
	return m.mutateMeta(func(meta *store.Meta) { meta.Clustered = v })
}

// SetComplete sets the meta.complete workflow flag.
func (m *Manager) SetComplete(v bool) error {
	return m.mutateMeta(func(meta *store.Meta) { meta.Complete = v })
}

func (m *Manager) mutateMeta(fn func(*store.Meta)) error {
	s, err := m.open()
	if err != nil {
		return err
	}
	defer s.Close()
	meta, err := s.ReadMeta()
	if err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	fn(&meta)
	if err := s.ReplaceMeta(meta); err != nil {
		return &StoreError{Path: m.dbPath, Err: err}
	}
	return nil
}

// NumContigs returns meta.numCons.
func (m *Manager) NumContigs() (int32, error) {
	meta, err := m.Meta()
	if err != nil {
		return 0, err
	}
	return meta.NumCons, nil
}

// NumBins returns meta.numBins.
func (m *Manager) NumBins() (int32, error) {
	meta, err := m.Meta()
	if err != nil {
		return 0, err
	}
	return meta.NumBins, nil
}
