package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	s, err := NewSQLiteChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunk(source, text string) *Chunk {
	return &Chunk{
		ID:         ChunkID(source, 0, len(text)),
		SourceURI:  source,
		ByteEnd:    len(text),
		Text:       text,
		TokenCount: 7,
		Language:   "go",
		Embedding:  []float32{0.1, 0.2, 0.3},
		Metadata:   map[string]string{"kind": "test"},
	}
}

func TestSQLiteChunkStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleChunk("src/a.go", "func main() {}")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{c}))

	got, err := s.GetChunk(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, c.TokenCount, got.TokenCount)
	assert.Equal(t, c.Language, got.Language)
	assert.Equal(t, c.Embedding, got.Embedding)
	assert.Equal(t, c.Metadata, got.Metadata)
}

func TestSQLiteChunkStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChunk(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSQLiteChunkStore_BatchGetPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleChunk("a.go", "alpha contents")
	b := sampleChunk("b.go", "bravo contents")
	c := sampleChunk("c.go", "charlie contents")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{a, b, c}))

	got, err := s.GetChunks(ctx, []string{c.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2, "missing IDs are skipped")
	assert.Equal(t, c.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestSQLiteChunkStore_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := sampleChunk("a.go", "first version here")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{c}))

	c2 := *c
	c2.Text = "second version here"
	c2.TokenCount = 9
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{&c2}))

	got, err := s.GetChunk(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "second version here", got.Text)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteChunkStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleChunk("a.go", "alpha contents")
	b := sampleChunk("b.go", "bravo contents")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{a, b}))
	require.NoError(t, s.DeleteChunks(ctx, []string{a.ID}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetChunk(ctx, a.ID)
	assert.Error(t, err)
}

func TestSQLiteChunkStore_State(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Empty(t, v, "absent state reads as empty")

	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "768"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexDimension, "1024"))

	v, err = s.GetState(ctx, StateKeyIndexDimension)
	require.NoError(t, err)
	assert.Equal(t, "1024", v)
}

func TestEmbeddingCodec_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	assert.Equal(t, vec, decodeEmbedding(encodeEmbedding(vec)))
	assert.Nil(t, decodeEmbedding(nil))
	assert.Nil(t, encodeEmbedding(nil))
}
