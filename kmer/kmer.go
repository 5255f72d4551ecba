// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package kmer builds the canonical k-mer alphabet for a chosen word length
// and computes length-normalised k-mer signature vectors for nucleotide
// sequences.
package kmer

import (
	"sort"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/groopm/biosimd"
)

const bases = "ACGT"

// Engine enumerates the canonical k-mer alphabet for a fixed word length and
// turns nucleotide sequences into signature vectors over that alphabet.
//
// The zero value is not usable; construct with New.
type Engine struct {
	k int
	// canonicalCols holds the sorted, deduplicated canonical k-mer strings;
	// this is the column order every signature vector is aligned to.
	canonicalCols []string
	// colIndex maps a canonical k-mer string to its position in canonicalCols.
	colIndex map[string]int
	// canonical maps every one of the 4^k k-mers (not just canonical ones) to
	// its canonical form, so the hot loop in Signature never recomputes a
	// reverse complement.
	canonical map[string]string
}

// New builds an Engine for word length k. k must be positive; New panics
// otherwise, since k is a fixed construction-time parameter, never derived
// from untrusted input.
func New(k int) *Engine {
	if k <= 0 {
		panic("kmer: k must be positive")
	}
	all := enumerate(k)
	canonical := make(map[string]string, len(all))
	seen := make(map[string]bool, len(all))
	var cols []string
	for _, s := range all {
		c := canonicalForm(s)
		canonical[s] = c
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return &Engine{
		k:             k,
		canonicalCols: cols,
		colIndex:      idx,
		canonical:     canonical,
	}
}

// K returns the word length the Engine was built for.
func (e *Engine) K() int { return e.k }

// Columns returns the canonical k-mer column names, in the fixed order every
// signature vector is aligned to. Callers must not mutate the result.
func (e *Engine) Columns() []string { return e.canonicalCols }

// Signature computes the length-normalised k-mer signature of seq: a dense
// vector aligned to Columns(), where each entry is the count of windows
// hashing to that canonical column divided by the total number of sliding
// windows (len(seq)-k+1). Windows containing a byte outside {A,C,G,T} are
// skipped silently; seq must already be upper-cased (see
// encoding/contigio, which cleans sequences before calling this).
func (e *Engine) Signature(seq string) []float64 {
	sig := make([]float64, len(e.canonicalCols))
	nWindows := len(seq) - e.k + 1
	if nWindows <= 0 {
		return sig
	}
	for i := 0; i < nWindows; i++ {
		window := seq[i : i+e.k]
		col, ok := e.canonical[window]
		if !ok {
			continue
		}
		sig[e.colIndex[col]]++
	}
	denom := float64(nWindows)
	for i := range sig {
		sig[i] /= denom
	}
	return sig
}

// SignatureAll computes Signature for every sequence in seqs concurrently,
// returning a row-aligned slice of signature vectors. This is the
// embarrassingly-parallel per-contig map: each signature depends only on its
// own sequence.
func (e *Engine) SignatureAll(seqs []string) ([][]float64, error) {
	out := make([][]float64, len(seqs))
	err := traverse.Each(len(seqs), func(i int) error {
		out[i] = e.Signature(seqs[i])
		return nil
	})
	return out, err
}

// GCFraction returns the fraction of {G,C} bases among non-N positions of
// seq. Returns 0 if seq has no called bases.
func GCFraction(seq string) float64 {
	var gc, called int
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case 'G', 'C', 'g', 'c':
			gc++
			called++
		case 'A', 'T', 'a', 't':
			called++
		}
	}
	if called == 0 {
		return 0
	}
	return float64(gc) / float64(called)
}

// enumerate returns every string of length k over {A,C,G,T}, in
// lexicographic order.
func enumerate(k int) []string {
	n := 1
	for i := 0; i < k; i++ {
		n *= 4
	}
	out := make([]string, n)
	buf := make([]byte, k)
	var rec func(pos, idx int) int
	rec = func(pos, idx int) int {
		if pos == k {
			out[idx] = string(buf)
			return idx + 1
		}
		for _, b := range []byte(bases) {
			buf[pos] = b
			idx = rec(pos+1, idx)
		}
		return idx
	}
	rec(0, 0)
	return out
}

// canonicalForm returns the lexicographically smaller of s and its reverse
// complement.
func canonicalForm(s string) string {
	rc := []byte(s)
	biosimd.ReverseComp8Inplace(rc)
	if string(rc) < s {
		return string(rc)
	}
	return s
}
