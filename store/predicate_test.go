package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, expr string, row ContigRow) bool {
	p, err := ParsePredicate(expr)
	require.NoError(t, err)
	return p.Match(row)
}

func TestParsePredicate(t *testing.T) {
	row := ContigRow{Cid: "contig_42", Bid: 3, Length: 1500}

	assert.True(t, eval(t, "length >= 1000", row))
	assert.False(t, eval(t, "length < 1000", row))
	assert.True(t, eval(t, "bid == 3", row))
	assert.False(t, eval(t, "bid != 3", row))
	assert.True(t, eval(t, "cid == \"contig_42\"", row))
	assert.True(t, eval(t, "re(cid, \"^contig_[0-9]+$\")", row))
	assert.False(t, eval(t, "re(cid, \"^scaffold\")", row))
	assert.True(t, eval(t, "!re(cid, \"^scaffold\")", row))
	assert.True(t, eval(t, "(bid == 3) && length > 1000", row))
	assert.False(t, eval(t, "(bid == 99) && length > 1000", row))
	assert.True(t, eval(t, "(bid == 99) || length > 1000", row))
}

func TestParsePredicateRejectsMixedTypes(t *testing.T) {
	_, err := ParsePredicate(`cid == 3`)
	assert.Error(t, err)
}

func TestParsePredicateRejectsUnknownSymbol(t *testing.T) {
	_, err := ParsePredicate(`mapping_quality > 5`)
	assert.Error(t, err)
}

func TestParsePredicateRejectsMalformedSyntax(t *testing.T) {
	_, err := ParsePredicate(`length >=`)
	assert.Error(t, err)
}

func TestAllMatchesEveryRow(t *testing.T) {
	assert.True(t, All.Match(ContigRow{Length: 0}))
	assert.True(t, All.Match(ContigRow{Length: 1 << 20}))
}
