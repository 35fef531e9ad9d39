package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorConfig(3))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSW_AddAndSearch(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		}))
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "x", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)
}

func TestHNSW_DimensionMismatch(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	require.NoError(t, idx.Add(ctx, []string{"b"}, [][]float32{{1, 0, 0}}))
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSW_EmptySearch(t *testing.T) {
	idx := newTestHNSW(t)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSW_DeleteIsLazy(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ChunkID, "deleted IDs never resurface")
	}
}

func TestHNSW_Replace(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, idx.Add(ctx, []string{"a"}, [][]float32{{0, 1, 0}}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)
}

func TestHNSW_SaveLoadRoundTrip(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))

	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, idx.Save(path))

	loaded, err := NewHNSWIndex(DefaultVectorConfig(3))
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}
