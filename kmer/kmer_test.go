package kmer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewColumns(t *testing.T) {
	e := New(2)
	// 4^2 = 16 2-mers, folded onto canonical forms: 10 distinct columns
	// (AA/TT, AC/GT, AG/CT, AT/AT(palindrome), CA/TG, CC/GG, CG/CG(palindrome),
	// GA/TC, GC/GC(palindrome), TA/TA(palindrome)).
	require.Len(t, e.Columns(), 10)
	for i := 1; i < len(e.Columns()); i++ {
		assert.True(t, e.Columns()[i-1] < e.Columns()[i], "columns must be sorted ascending")
	}
}

func TestSignatureSumsToOne(t *testing.T) {
	e := New(2)
	sig := e.Signature("ACGTACGT")
	var sum float64
	for _, v := range sig {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestSignatureSkipsAmbiguousWindows(t *testing.T) {
	e := New(2)
	sig := e.Signature("AANN")
	// windows: AA, AN, NN -> only AA hashes; nWindows = 3
	col := e.Columns()
	idx := -1
	for i, c := range col {
		if c == "AA" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	assert.InDelta(t, 1.0/3.0, sig[idx], 1e-9)
	var sum float64
	for _, v := range sig {
		sum += v
	}
	assert.InDelta(t, 1.0/3.0, sum, 1e-9)
}

func TestSignatureSingleKmer(t *testing.T) {
	e := New(2)
	sig := e.Signature("AA")
	col := e.Columns()
	for i, c := range col {
		if c == "AA" {
			assert.InDelta(t, 1.0, sig[i], 1e-9)
		} else {
			assert.Equal(t, 0.0, sig[i])
		}
	}
}

func TestSignatureTooShort(t *testing.T) {
	e := New(4)
	sig := e.Signature("AC")
	for _, v := range sig {
		assert.Equal(t, 0.0, v)
	}
}

func TestSignatureAllParallel(t *testing.T) {
	e := New(3)
	seqs := []string{"ACGTACGTACGT", "TTTTTTTTTTTT", "GGGGCCCCAAAA"}
	sigs, err := e.SignatureAll(seqs)
	require.NoError(t, err)
	require.Len(t, sigs, len(seqs))
	for i, seq := range seqs {
		want := e.Signature(seq)
		assert.Equal(t, want, sigs[i])
	}
}

func TestGCFraction(t *testing.T) {
	assert.InDelta(t, 0.5, GCFraction("ACGT"), 1e-9)
	assert.InDelta(t, 1.0, GCFraction("GGCC"), 1e-9)
	assert.InDelta(t, 0.0, GCFraction(""), 1e-9)
	assert.True(t, math.Abs(GCFraction("NNNN")) < 1e-9)
}
