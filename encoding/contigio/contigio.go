// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package contigio

import (
	"io"
	"sort"

	"github.com/grailbio/groopm/kmer"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ContigSet is the row-aligned result of scanning and profiling a contig
// collection: Names, Lengths, and KmerSigs all share the same row order, and
// PC1/PC2 (once computed by ComputePCA) are aligned to the same rows.
//
// Row order is ascending by Name, assigned once when the set is built;
// duplicate names encountered while scanning overwrite the earlier record
// (last one wins), per the parser's duplicate-name policy.
type ContigSet struct {
	Names    []string
	Lengths  []int
	KmerSigs [][]float64
	PC1      []float64
	PC2      []float64
}

// Read scans r for FASTA/FASTQ records, computes their k-mer signatures with
// eng, and returns the row-aligned, name-sorted ContigSet. It does not
// compute PCA; call ComputePCA afterwards once the whole set is known.
func Read(r io.Reader, eng *kmer.Engine) (*ContigSet, error) {
	byName := make(map[string]string)
	var order []string
	sc := NewScanner(r)
	var rec Record
	for sc.Scan(&rec) {
		if _, dup := byName[rec.Name]; !dup {
			order = append(order, rec.Name)
		}
		byName[rec.Name] = rec.Seq
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "contigio.Read")
	}

	names := append([]string(nil), order...)
	sort.Strings(names)

	seqs := make([]string, len(names))
	lengths := make([]int, len(names))
	for i, n := range names {
		seqs[i] = byName[n]
		lengths[i] = len(byName[n])
	}

	sigs, err := eng.SignatureAll(seqs)
	if err != nil {
		return nil, errors.Wrap(err, "contigio.Read: computing k-mer signatures")
	}

	return &ContigSet{
		Names:    names,
		Lengths:  lengths,
		KmerSigs: sigs,
	}, nil
}

// ComputePCA projects KmerSigs onto their first two principal components,
// rescales each component to [0,1], and fills PC1/PC2. When the set has
// fewer than two contigs, or the signatures have no columns, PC1/PC2 hold one
// zero per contig, since PCA is undefined on such a degenerate matrix.
func (cs *ContigSet) ComputePCA() error {
	n := len(cs.KmerSigs)
	cs.PC1 = make([]float64, n)
	cs.PC2 = make([]float64, n)
	if n < 2 {
		return nil
	}
	ncols := len(cs.KmerSigs[0])
	if ncols == 0 {
		return nil
	}

	data := mat.NewDense(n, ncols, nil)
	for i, row := range cs.KmerSigs {
		data.SetRow(i, row)
	}

	var pc stat.PC
	ok := pc.PrincipalComponents(data, nil)
	if !ok {
		return errors.New("contigio: principal components computation failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	// Scores = centred data * first two eigenvectors.
	means := make([]float64, ncols)
	for c := 0; c < ncols; c++ {
		var sum float64
		for r := 0; r < n; r++ {
			sum += data.At(r, c)
		}
		means[c] = sum / float64(n)
	}
	centered := mat.NewDense(n, ncols, nil)
	for r := 0; r < n; r++ {
		for c := 0; c < ncols; c++ {
			centered.Set(r, c, data.At(r, c)-means[c])
		}
	}
	var scores mat.Dense
	scores.Mul(centered, vecs.Slice(0, ncols, 0, 2))

	pc1 := make([]float64, n)
	pc2 := make([]float64, n)
	for r := 0; r < n; r++ {
		pc1[r] = scores.At(r, 0)
		pc2[r] = scores.At(r, 1)
	}
	rescale(pc1)
	rescale(pc2)
	cs.PC1 = pc1
	cs.PC2 = pc2
	return nil
}

// rescale maps vals in place to [0,1]: subtract the min, then divide by the
// new max. A constant vector maps to all zeros.
func rescale(vals []float64) {
	if len(vals) == 0 {
		return
	}
	min := vals[0]
	for _, v := range vals {
		if v < min {
			min = v
		}
	}
	for i := range vals {
		vals[i] -= min
	}
	max := vals[0]
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}
	for i := range vals {
		vals[i] /= max
	}
}
