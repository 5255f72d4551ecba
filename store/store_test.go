package store

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	t.Cleanup(cleanup)
	path := filepath.Join(tempDir, "test.gmdb")
	s, err := Create(path)
	require.NoError(t, err)
	return s, path
}

func TestCreateWritesDefaultMeta(t *testing.T) {
	s, _ := newTestStore(t)
	meta, err := s.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, int32(CurrentFormatVersion), meta.FormatVersion)
	assert.False(t, meta.Clustered)
	assert.False(t, meta.Complete)
}

func TestCreateRefusesExistingPath(t *testing.T) {
	_, path := newTestStore(t)
	_, err := Create(path)
	assert.Error(t, err)
}

func TestReplaceMetaRoundTrips(t *testing.T) {
	s, path := newTestStore(t)
	meta, err := s.ReadMeta()
	require.NoError(t, err)
	meta.NumCons = 42
	meta.Clustered = true
	require.NoError(t, s.ReplaceMeta(meta))

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.NumCons)
	assert.True(t, got.Clustered)
}

func TestContigsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	rows := []ContigRow{
		{Cid: "contig_1", Bid: 0, Length: 500},
		{Cid: "contig_2", Bid: 1, Length: 900},
	}
	require.NoError(t, s.ReplaceContigs(rows))

	got, err := s.ReadContigs()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestKmerSigsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	cols := []string{"AA", "AC", "AG"}
	sigs := [][]float64{{0.5, 0.3, 0.2}, {0.1, 0.1, 0.8}}
	require.NoError(t, s.ReplaceKmerSigs(cols, sigs))

	got, gotCols, err := s.ReadKmerSigs()
	require.NoError(t, err)
	assert.Equal(t, cols, gotCols)
	assert.Equal(t, sigs, got)
}

func TestCoverageRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	cols := []string{"sample1", "sample2"}
	cov := [][]float64{{1.5, 2.5}, {3.5, 4.5}}
	require.NoError(t, s.ReplaceCoverage(cols, cov))

	got, gotCols, err := s.ReadCoverage()
	require.NoError(t, err)
	assert.Equal(t, cols, gotCols)
	assert.Equal(t, cov, got)
}

func TestKmerPCAAbsentUntilUpgraded(t *testing.T) {
	s, _ := newTestStore(t)
	assert.False(t, s.HasKmerPCA())
	pc1, pc2, err := s.ReadKmerPCA()
	require.NoError(t, err)
	assert.Nil(t, pc1)
	assert.Nil(t, pc2)
}

func TestKmerPCARoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.ReplaceKmerPCA([]float64{0, 0.5, 1}, []float64{1, 0.5, 0}))
	assert.True(t, s.HasKmerPCA())

	pc1, pc2, err := s.ReadKmerPCA()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, pc1)
	assert.Equal(t, []float64{1, 0.5, 0}, pc2)
}

func TestKmerPCARejectsMismatchedLengths(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.ReplaceKmerPCA([]float64{0, 1}, []float64{1})
	assert.Error(t, err)
}

func TestBinsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	rows := []BinRow{{Bid: 1, NumMembers: 10}, {Bid: 2, NumMembers: 5}}
	require.NoError(t, s.ReplaceBins(rows))

	got, err := s.ReadBins()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestLinksRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	rows := []LinkRow{{Contig1: 0, Contig2: 1, NumReads: 7, LinkType: 0, Gap: 120}}
	require.NoError(t, s.ReplaceLinks(rows))

	got, err := s.ReadLinks()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReplaceTableSurvivesReopen(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.ReplaceContigs([]ContigRow{{Cid: "a", Bid: 0, Length: 10}}))

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.ReadContigs()
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].Cid)
}
