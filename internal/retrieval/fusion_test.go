package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlorp/synapse/internal/store"
)

// --- Test helpers ---

func denseList(ids ...string) []*store.VectorResult {
	out := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &store.VectorResult{ChunkID: id, Score: float32(1.0 - 0.01*float64(i))}
	}
	return out
}

func sparseList(ids ...string) []*store.SparseResult {
	out := make([]*store.SparseResult, len(ids))
	for i, id := range ids {
		out[i] = &store.SparseResult{ChunkID: id, Score: 10.0 - float64(i)}
	}
	return out
}

func fusedIDs(entries []*fusedEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkID
	}
	return ids
}

// --- Tests ---

func TestRRF_EmptyInputs(t *testing.T) {
	f := newRRFFusion(DefaultRRFConstant)
	assert.Empty(t, f.Fuse(nil, nil))
}

func TestRRF_ScoreFormula(t *testing.T) {
	f := newRRFFusion(60)

	results := f.Fuse(denseList("A"), sparseList("A"))
	require.Len(t, results, 1)
	// Rank 1 in both lists: 1/61 + 1/61.
	assert.InDelta(t, 2.0/61.0, results[0].RRFScore, 1e-12)
}

func TestRRF_MissingListContributesNothing(t *testing.T) {
	f := newRRFFusion(60)

	results := f.Fuse(denseList("A"), sparseList("B"))
	require.Len(t, results, 2)
	for _, e := range results {
		assert.InDelta(t, 1.0/61.0, e.RRFScore, 1e-12)
		assert.False(t, e.InBothLists)
	}
}

func TestRRF_BothListsOutrankSingleList(t *testing.T) {
	f := newRRFFusion(60)

	// C is rank 3 dense and rank 2 sparse; A is rank 1 dense only.
	results := f.Fuse(denseList("A", "B", "C"), sparseList("D", "C"))
	require.NotEmpty(t, results)
	assert.Equal(t, "C", results[0].ChunkID)
	assert.True(t, results[0].InBothLists)
}

func TestRRF_Monotonicity(t *testing.T) {
	// A outranks B in both lists, so A must outrank B after fusion.
	f := newRRFFusion(60)
	results := f.Fuse(denseList("X", "A", "B"), sparseList("A", "Y", "B"))

	ids := fusedIDs(results)
	posA, posB := -1, -1
	for i, id := range ids {
		switch id {
		case "A":
			posA = i
		case "B":
			posB = i
		}
	}
	require.GreaterOrEqual(t, posA, 0)
	require.GreaterOrEqual(t, posB, 0)
	assert.Less(t, posA, posB)
}

func TestRRF_TieBreaks(t *testing.T) {
	f := newRRFFusion(60)

	// A and B both appear only at rank 1 of one list: equal scores.
	// Neither is in both lists; A holds a dense rank, B does not.
	results := f.Fuse(denseList("A"), sparseList("B"))
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ChunkID, "dense rank wins the tie")

	// Equal single-list dense ranks cannot happen; equal everything falls
	// back to lexicographic chunk ID.
	results = f.Fuse(nil, sparseList("Z", "M"))
	require.Len(t, results, 2)
	assert.Equal(t, "Z", results[0].ChunkID, "rank order preserved ahead of ID tie-break")
}

func TestRRF_DuplicateIDsKeepBestRank(t *testing.T) {
	f := newRRFFusion(60)

	dense := []*store.VectorResult{
		{ChunkID: "A", Score: 0.9},
		{ChunkID: "A", Score: 0.8},
		{ChunkID: "B", Score: 0.7},
	}
	results := f.Fuse(dense, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ChunkID)
	assert.Equal(t, 1, results[0].DenseRank)
	assert.InDelta(t, 1.0/61.0, results[0].RRFScore, 1e-12)
}

func TestRRF_DeterministicOrder(t *testing.T) {
	f := newRRFFusion(60)
	dense := denseList("C", "A", "B")
	sparse := sparseList("B", "C", "A")

	first := fusedIDs(f.Fuse(dense, sparse))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, fusedIDs(f.Fuse(dense, sparse)))
	}
}

func TestRRF_CustomConstant(t *testing.T) {
	f := newRRFFusion(10)
	results := f.Fuse(denseList("A"), nil)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/11.0, results[0].RRFScore, 1e-12)

	// Non-positive constants fall back to the default.
	fallback := newRRFFusion(0)
	assert.Equal(t, DefaultRRFConstant, fallback.k)
}
