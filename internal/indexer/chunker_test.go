package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlorp/synapse/internal/token"
)

func newTestChunker(maxTokens int) *Chunker {
	return NewChunker(maxTokens, token.ApproxCounter{})
}

func TestChunk_Empty(t *testing.T) {
	c := newTestChunker(100)
	assert.Nil(t, c.Chunk("a.md", ""))
	assert.Nil(t, c.Chunk("a.md", "   \n\n  "))
}

func TestChunk_SingleParagraph(t *testing.T) {
	c := newTestChunker(100)
	chunks := c.Chunk("a.md", "one small paragraph of text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "one small paragraph of text", chunks[0].Text)
	assert.Equal(t, "a.md", chunks[0].SourceURI)
	assert.Positive(t, chunks[0].TokenCount)
	assert.Equal(t, "markdown", chunks[0].Language)
}

func TestChunk_SplitsAtTokenBound(t *testing.T) {
	para := strings.Repeat("word ", 40)
	content := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	c := newTestChunker(60)
	chunks := c.Chunk("doc.txt", content)
	require.Greater(t, len(chunks), 1, "three 40-token paragraphs cannot fit one 60-token chunk")

	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 80, "one paragraph may exceed the bound, pairs may not")
	}
}

func TestChunk_StableIDs(t *testing.T) {
	c := newTestChunker(100)
	first := c.Chunk("a.go", "package main\n\nfunc main() {}")
	second := c.Chunk("a.go", "package main\n\nfunc main() {}")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChunk_DistinctSourcesDistinctIDs(t *testing.T) {
	c := newTestChunker(100)
	a := c.Chunk("a.go", "same content")
	b := c.Chunk("b.go", "same content")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestChunk_TrailingFragmentMerged(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("word ", 50))
	content := big + "\n\n" + big + "\n\ntiny"

	c := newTestChunker(60)
	chunks := c.Chunk("doc.txt", content)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Contains(t, last.Text, "tiny")
	assert.Greater(t, last.TokenCount, DefaultMinChunkTokens,
		"the trailing fragment folds into its predecessor")
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", detectLanguage("cmd/main.go"))
	assert.Equal(t, "markdown", detectLanguage("README.md"))
	assert.Equal(t, "text", detectLanguage("notes"))
	assert.Equal(t, "python", detectLanguage("script.py"))
}
