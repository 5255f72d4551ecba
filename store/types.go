// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

import "github.com/grailbio/groopm/store/codec"

// Group and table names, as named in SPEC_FULL.md §3.
const (
	GroupProfile = "profile"
	GroupLinks   = "links"
	GroupMeta    = "meta"

	TableKms      = "kms"
	TableKpca     = "kpca"
	TableCoverage = "coverage"
	TableLinks    = "links"
	TableContigs  = "contigs"
	TableBin      = "bin"
	TableMeta     = "meta"
)

// Fixed-width string column widths (§6).
const (
	cidWidth           = 512
	stoitColNamesWidth = 512
	merColNamesWidth   = 4096
)

// CurrentFormatVersion is the current meta.formatVersion; a store whose
// version field is absent is treated as version 0 (see CheckAndUpgrade in
// package datamgr).
const CurrentFormatVersion = 1

// Meta is the single metadata row stored in the meta/meta table, held and
// round-tripped as one value per SPEC_FULL.md §4.5's "metadata as one fat
// row" guidance: every setter mutates one field of a Meta and writes the
// whole struct back through ReplaceMeta.
type Meta struct {
	StoitColNames string // comma-joined BAM column names, in column order
	NumStoits     int32
	MerColNames   string // comma-joined canonical k-mer column names
	MerSize       int32
	NumMers       int32
	NumCons       int32
	NumBins       int32
	Clustered     bool
	Complete      bool
	FormatVersion int32
}

func metaSchema() codec.Schema {
	return codec.Schema{Columns: []codec.Column{
		{Name: "stoitColNames", Type: codec.String, Width: stoitColNamesWidth},
		{Name: "numStoits", Type: codec.Int32},
		{Name: "merColNames", Type: codec.String, Width: merColNamesWidth},
		{Name: "merSize", Type: codec.Int32},
		{Name: "numMers", Type: codec.Int32},
		{Name: "numCons", Type: codec.Int32},
		{Name: "numBins", Type: codec.Int32},
		{Name: "clustered", Type: codec.Bool},
		{Name: "complete", Type: codec.Bool},
		{Name: "formatVersion", Type: codec.Int32},
	}}
}

func metaToRow(m Meta) codec.Row {
	return codec.Row{
		m.StoitColNames, m.NumStoits, m.MerColNames, m.MerSize, m.NumMers,
		m.NumCons, m.NumBins, m.Clustered, m.Complete, m.FormatVersion,
	}
}

func rowToMeta(r codec.Row) Meta {
	m := Meta{
		StoitColNames: r[0].(string),
		NumStoits:     r[1].(int32),
		MerColNames:   r[2].(string),
		MerSize:       r[3].(int32),
		NumMers:       r[4].(int32),
		NumCons:       r[5].(int32),
		NumBins:       r[6].(int32),
		Clustered:     r[7].(bool),
		Complete:      r[8].(bool),
	}
	// A meta row without the formatVersion column reads as version 0.
	if len(r) > 9 {
		m.FormatVersion = r[9].(int32)
	}
	return m
}

func contigsSchema() codec.Schema {
	return codec.Schema{Columns: []codec.Column{
		{Name: "cid", Type: codec.String, Width: cidWidth},
		{Name: "bid", Type: codec.Int32},
		{Name: "length", Type: codec.Int32},
	}}
}

// ContigRow is one row of the contigs table.
type ContigRow struct {
	Cid    string
	Bid    int32
	Length int32
}

func contigToRow(c ContigRow) codec.Row { return codec.Row{c.Cid, c.Bid, c.Length} }

func rowToContig(r codec.Row) ContigRow {
	return ContigRow{Cid: r[0].(string), Bid: r[1].(int32), Length: r[2].(int32)}
}

func binSchema() codec.Schema {
	return codec.Schema{Columns: []codec.Column{
		{Name: "bid", Type: codec.Int32},
		{Name: "numMembers", Type: codec.Int32},
	}}
}

// BinRow is one row of the bin table.
type BinRow struct {
	Bid        int32
	NumMembers int32
}

func binToRow(b BinRow) codec.Row { return codec.Row{b.Bid, b.NumMembers} }

func rowToBin(r codec.Row) BinRow {
	return BinRow{Bid: r[0].(int32), NumMembers: r[1].(int32)}
}

func linksSchema() codec.Schema {
	return codec.Schema{Columns: []codec.Column{
		{Name: "contig1", Type: codec.Int32},
		{Name: "contig2", Type: codec.Int32},
		{Name: "numReads", Type: codec.Int32},
		{Name: "linkType", Type: codec.Int32},
		{Name: "gap", Type: codec.Int32},
	}}
}

// LinkRow is one row of the links table.
type LinkRow struct {
	Contig1  int32
	Contig2  int32
	NumReads int32
	LinkType int32
	Gap      int32
}

func linkToRow(l LinkRow) codec.Row {
	return codec.Row{l.Contig1, l.Contig2, l.NumReads, l.LinkType, l.Gap}
}

func rowToLink(r codec.Row) LinkRow {
	return LinkRow{
		Contig1: r[0].(int32), Contig2: r[1].(int32), NumReads: r[2].(int32),
		LinkType: r[3].(int32), Gap: r[4].(int32),
	}
}

// floatTableSchema builds a schema of n float64 columns named by cols, used
// for both the kms table (one column per canonical k-mer) and the coverage
// table (one column per BAM), whose column sets are discovered at creation
// time rather than fixed in advance (SPEC_FULL.md §9, "dynamic column
// names").
func floatTableSchema(cols []string) codec.Schema {
	schema := codec.Schema{Columns: make([]codec.Column, len(cols))}
	for i, name := range cols {
		schema.Columns[i] = codec.Column{Name: name, Type: codec.Float64}
	}
	return schema
}

func floatsToRow(vals []float64) codec.Row {
	row := make(codec.Row, len(vals))
	for i, v := range vals {
		row[i] = v
	}
	return row
}

func rowToFloats(r codec.Row) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = v.(float64)
	}
	return out
}

func kpcaSchema() codec.Schema {
	return codec.Schema{Columns: []codec.Column{
		{Name: "pc1", Type: codec.Float64},
		{Name: "pc2", Type: codec.Float64},
	}}
}
