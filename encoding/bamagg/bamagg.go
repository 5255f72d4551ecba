// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bamagg computes per-contig coverage and paired-read link evidence
// from a set of BAM files, normalised by contig length.
package bamagg

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
)

// LinkType denotes the relative orientation of the two contig ends a paired
// link straddles: the read on contig1 is on its Start or End, and likewise
// for the mate on contig2.
type LinkType int

const (
	SS LinkType = iota // both reads point towards their contig's start
	SE                 // contig1's read towards start, contig2's towards end
	ES                 // contig1's read towards end, contig2's towards start
	EE                 // both reads point towards their contig's end
)

func (t LinkType) String() string {
	switch t {
	case SS:
		return "SS"
	case SE:
		return "SE"
	case ES:
		return "ES"
	case EE:
		return "EE"
	}
	return "?"
}

// minSupport is the minimum number of supporting read pairs required before
// a link is emitted.
const minSupport = 5

// Link is one emitted paired-end link between two distinct contigs.
type Link struct {
	Contig1  int // row index into the caller's contig set
	Contig2  int
	NumReads int
	LinkType LinkType
	Gap      int
}

// Result is the output of aggregating one BAM: one coverage value per
// contig (indexed by the caller's row index, 0.0 for contigs with no
// alignments) and the links extracted from that BAM.
type Result struct {
	// ColumnName is the BAM's column name: its basename without extension.
	ColumnName string
	Coverage   []float64
	Links      []Link
}

// ContigSet is the caller-supplied accepted contig-name set: Names gives the
// row order, Lengths the per-row length, both aligned.
type ContigSet struct {
	Names   []string
	Lengths []int
}

func (cs *ContigSet) indexOf() map[string]int {
	idx := make(map[string]int, len(cs.Names))
	for i, n := range cs.Names {
		idx[n] = i
	}
	return idx
}

// Aggregate opens every BAM in bamPaths (in order) and computes one Result
// per BAM, running the per-BAM work concurrently since each BAM's
// aggregation is independent of the others (§5: embarrassingly parallel).
func Aggregate(bamPaths []string, contigs *ContigSet) ([]Result, error) {
	results := make([]Result, len(bamPaths))
	idx := contigs.indexOf()
	err := traverse.Each(len(bamPaths), func(i int) error {
		r, err := aggregateOne(bamPaths[i], contigs, idx)
		if err != nil {
			return errors.Wrapf(err, "bamagg: %s", bamPaths[i])
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func columnName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pairKey identifies a candidate link by the unordered pair of contig row
// indices and the orientation class, so repeated reads supporting the same
// link accumulate into one NumReads/gap estimate.
type pairKey struct {
	a, b int
	typ  LinkType
}

type pairAccum struct {
	numReads int
	gapSum   int
}

func aggregateOne(path string, contigs *ContigSet, idx map[string]int) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "open")
	}
	defer f.Close()

	r, err := bam.NewReader(f, 0)
	if err != nil {
		return Result{}, errors.Wrap(err, "decode header")
	}
	defer r.Close()

	counts := make([]int, len(contigs.Names))
	accum := make(map[pairKey]*pairAccum)

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, errors.Wrap(err, "read record")
		}
		if rec.Flags&(sam.Unmapped|sam.Secondary|sam.Supplementary|sam.QCFail) != 0 {
			continue
		}
		if rec.Ref == nil {
			continue
		}
		row, ok := idx[rec.Ref.Name()]
		if !ok {
			continue
		}
		counts[row]++

		if rec.Flags&sam.MateUnmapped != 0 || rec.MateRef == nil {
			continue
		}
		mateRow, ok := idx[rec.MateRef.Name()]
		if !ok || mateRow == row {
			continue
		}
		// Count each pair once: only the leftmost-by-coordinate read of the
		// pair contributes a candidate link, so the two mates don't double
		// count the same piece of evidence.
		if !isLeftmost(rec) {
			continue
		}
		typ := classify(rec, contigs.Lengths[row], contigs.Lengths[mateRow])
		a, b := row, mateRow
		if a > b {
			a, b = b, a
			// Keep the first letter of the orientation on Contig1.
			switch typ {
			case SE:
				typ = ES
			case ES:
				typ = SE
			}
		}
		key := pairKey{a: a, b: b, typ: typ}
		gap := estimateGap(rec)
		acc, ok := accum[key]
		if !ok {
			acc = &pairAccum{}
			accum[key] = acc
		}
		acc.numReads++
		acc.gapSum += gap
	}

	coverage := make([]float64, len(contigs.Names))
	for i, length := range contigs.Lengths {
		if length > 0 {
			coverage[i] = float64(counts[i]) / float64(length)
		}
	}

	var links []Link
	for key, acc := range accum {
		if acc.numReads < minSupport {
			continue
		}
		links = append(links, Link{
			Contig1:  key.a,
			Contig2:  key.b,
			NumReads: acc.numReads,
			LinkType: key.typ,
			Gap:      acc.gapSum / acc.numReads,
		})
	}

	return Result{ColumnName: columnName(path), Coverage: coverage, Links: links}, nil
}

// isLeftmost mirrors the donor's IsLeftMost: the read on the smaller
// reference id, the smaller alignment position, or Read1 on a tie, is
// considered the representative of the pair.
func isLeftmost(r *sam.Record) bool {
	if r.Ref.ID() != r.MateRef.ID() {
		return r.Ref.ID() < r.MateRef.ID()
	}
	if r.Pos != r.MatePos {
		return r.Pos < r.MatePos
	}
	return r.Flags&sam.Read1 != 0
}

// classify determines which ends of the two contigs this read pair
// straddles: a read whose alignment lies in the first half of its contig is
// considered to point towards that contig's Start, otherwise its End.
func classify(r *sam.Record, lenA int, lenB int) LinkType {
	aEnd := r.Pos >= lenA/2
	bEnd := r.MatePos >= lenB/2
	switch {
	case !aEnd && !bEnd:
		return SS
	case !aEnd && bEnd:
		return SE
	case aEnd && !bEnd:
		return ES
	default:
		return EE
	}
}

// estimateGap estimates the insertion distance bridged by the pair: the
// distance from the read's alignment end to the mate's alignment start,
// which may be negative when the two reads overlap or point away from each
// other across the link.
func estimateGap(r *sam.Record) int {
	end := r.End()
	if end < 0 {
		end = r.Pos
	}
	return r.MatePos - end
}
