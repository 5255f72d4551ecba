package bamagg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnName(t *testing.T) {
	assert.Equal(t, "sample1", columnName("/data/bams/sample1.bam"))
	assert.Equal(t, "sample2", columnName("sample2.bam"))
}

func newRefs(t *testing.T) []*sam.Reference {
	header, err := sam.NewHeader(nil, []*sam.Reference{})
	require.NoError(t, err)
	ref1, err := sam.NewReference("c1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	ref2, err := sam.NewReference("c2", "", "", 1000, nil, nil)
	require.NoError(t, err)
	require.NoError(t, header.AddReference(ref1))
	require.NoError(t, header.AddReference(ref2))
	return []*sam.Reference{ref1, ref2}
}

func TestIsLeftmostByPosition(t *testing.T) {
	refs := newRefs(t)
	r := &sam.Record{
		Ref: refs[0], Pos: 10,
		MateRef: refs[0], MatePos: 20,
		Flags: sam.Paired,
	}
	assert.True(t, isLeftmost(r))
	r2 := &sam.Record{
		Ref: refs[0], Pos: 20,
		MateRef: refs[0], MatePos: 10,
		Flags: sam.Paired,
	}
	assert.False(t, isLeftmost(r2))
}

func TestIsLeftmostTieBreaksOnRead1(t *testing.T) {
	refs := newRefs(t)
	r := &sam.Record{
		Ref: refs[0], Pos: 10,
		MateRef: refs[0], MatePos: 10,
		Flags: sam.Paired | sam.Read1,
	}
	assert.True(t, isLeftmost(r))
	r2 := &sam.Record{
		Ref: refs[0], Pos: 10,
		MateRef: refs[0], MatePos: 10,
		Flags: sam.Paired | sam.Read2,
	}
	assert.False(t, isLeftmost(r2))
}

func TestClassifyOrientations(t *testing.T) {
	// lenA = lenB = 1000; position < 500 -> "start", >= 500 -> "end".
	assert.Equal(t, SS, classify(&sam.Record{Pos: 10, MatePos: 10}, 1000, 1000))
	assert.Equal(t, SE, classify(&sam.Record{Pos: 10, MatePos: 900}, 1000, 1000))
	assert.Equal(t, ES, classify(&sam.Record{Pos: 900, MatePos: 10}, 1000, 1000))
	assert.Equal(t, EE, classify(&sam.Record{Pos: 900, MatePos: 900}, 1000, 1000))
}

func TestLinkTypeString(t *testing.T) {
	assert.Equal(t, "SS", SS.String())
	assert.Equal(t, "EE", EE.String())
}

func TestAggregateOpenError(t *testing.T) {
	_, err := Aggregate([]string{"/nonexistent/path.bam"}, &ContigSet{})
	assert.Error(t, err)
}

// writeBAM encodes header plus records to a real on-disk BAM file, so
// aggregateOne exercises the actual decode path rather than in-memory
// sam.Record fixtures.
func writeBAM(t *testing.T, path string, header *sam.Header, records []*sam.Record) {
	f, err := os.Create(path)
	require.NoError(t, err)
	bw, err := bam.NewWriter(f, header, 1)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, bw.Write(rec))
	}
	require.NoError(t, bw.Close())
	require.NoError(t, f.Close())
}

// TestAggregateOneComputesLengthNormalizedCoverage covers spec scenario 2: a
// contig's coverage is its mapped-read count divided by its length, and a
// BAM with no reads on a contig yields zero coverage for it.
func TestAggregateOneComputesLengthNormalizedCoverage(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, err := sam.NewReference("c1", "", "", 400, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)

	contigs := &ContigSet{Names: []string{"c1"}, Lengths: []int{400}}
	idx := contigs.indexOf()

	aPath := filepath.Join(tempDir, "a.bam")
	var aRecords []*sam.Record
	for i := 0; i < 50; i++ {
		aRecords = append(aRecords, &sam.Record{Name: "read", Ref: ref, Pos: i})
	}
	writeBAM(t, aPath, header, aRecords)

	aResult, err := aggregateOne(aPath, contigs, idx)
	require.NoError(t, err)
	assert.Equal(t, "a", aResult.ColumnName)
	require.Len(t, aResult.Coverage, 1)
	assert.InDelta(t, 50.0/400.0, aResult.Coverage[0], 1e-9)

	bPath := filepath.Join(tempDir, "b.bam")
	writeBAM(t, bPath, header, nil)

	bResult, err := aggregateOne(bPath, contigs, idx)
	require.NoError(t, err)
	require.Len(t, bResult.Coverage, 1)
	assert.Equal(t, 0.0, bResult.Coverage[0])
}

// TestAggregateOneDropsLinksToAbsentContigs covers spec scenario 6: links
// whose mate falls outside the caller's accepted contig set are dropped
// before they ever reach accumulation, and every surviving link clears
// minSupport with a valid row index on both ends.
func TestAggregateOneDropsLinksToAbsentContigs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	names := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "x1", "x2", "x3"}
	refs := make([]*sam.Reference, len(names))
	for i, n := range names {
		ref, err := sam.NewReference(n, "", "", 1000, nil, nil)
		require.NoError(t, err)
		refs[i] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	byName := make(map[string]*sam.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	contigs := &ContigSet{
		Names:   names[:7],
		Lengths: []int{1000, 1000, 1000, 1000, 1000, 1000, 1000},
	}
	idx := contigs.indexOf()

	// Every pair is constructed with the reference earlier in the header's
	// registration order first, so isLeftmost's differing-Ref shortcut
	// always makes it the representative regardless of Pos.
	validPairs := [][2]string{
		{"c1", "c2"}, {"c1", "c3"}, {"c1", "c4"},
		{"c2", "c3"}, {"c2", "c4"}, {"c3", "c4"},
		{"c5", "c6"},
	}
	invalidPairs := [][2]string{
		{"c1", "x1"}, {"c2", "x2"}, {"c3", "x3"},
	}

	var records []*sam.Record
	for _, p := range validPairs {
		for i := 0; i < minSupport; i++ {
			records = append(records, &sam.Record{
				Name:    "read",
				Ref:     byName[p[0]],
				Pos:     100,
				MateRef: byName[p[1]],
				MatePos: 100,
				Flags:   sam.Paired,
			})
		}
	}
	for _, p := range invalidPairs {
		records = append(records, &sam.Record{
			Name:    "read",
			Ref:     byName[p[0]],
			Pos:     100,
			MateRef: byName[p[1]],
			MatePos: 100,
			Flags:   sam.Paired,
		})
	}

	path := filepath.Join(tempDir, "links.bam")
	writeBAM(t, path, header, records)

	result, err := aggregateOne(path, contigs, idx)
	require.NoError(t, err)
	require.Len(t, result.Links, len(validPairs))
	for _, link := range result.Links {
		assert.True(t, link.Contig1 >= 0 && link.Contig1 < len(contigs.Names))
		assert.True(t, link.Contig2 >= 0 && link.Contig2 < len(contigs.Names))
		assert.True(t, link.NumReads >= minSupport)
		assert.Equal(t, SS, link.LinkType)
	}
}
