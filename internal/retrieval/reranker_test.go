package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlorp/synapse/internal/cache"
	"github.com/dlorp/synapse/internal/encoder"
	"github.com/dlorp/synapse/internal/telemetry"
)

func newTestReranker(t *testing.T, enc *fakeEncoder) (*Reranker, *telemetry.Counters) {
	t.Helper()
	mem := cache.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	counters := &telemetry.Counters{}

	// Keep a typed-nil fake from masquerading as a non-nil interface.
	var crossEnc encoder.CrossEncoder
	if enc != nil {
		crossEnc = enc
	}
	r := NewReranker(crossEnc, mem, NewLimits(LimitsConfig{}), counters, RerankConfig{})
	return r, counters
}

func fiveCandidates() []ScoredChunk {
	return []ScoredChunk{
		{Chunk: testChunk("a.md", "alpha passage", 10), Score: 0.05, Provenance: ProvenanceFused},
		{Chunk: testChunk("b.md", "bravo passage", 10), Score: 0.04, Provenance: ProvenanceFused},
		{Chunk: testChunk("c.md", "charlie passage", 10), Score: 0.03, Provenance: ProvenanceFused},
		{Chunk: testChunk("d.md", "delta passage", 10), Score: 0.02, Provenance: ProvenanceFused},
		{Chunk: testChunk("e.md", "echo passage", 10), Score: 0.01, Provenance: ProvenanceFused},
	}
}

const longQuery = "find the passage about the alpha topic please"

func TestRerank_SkipFewCandidates(t *testing.T) {
	enc := &fakeEncoder{base: 0.9}
	r, counters := newTestReranker(t, enc)

	ranked, outcome := r.Rerank(context.Background(), longQuery, fiveCandidates()[:2], 0)
	assert.True(t, outcome.Skipped)
	assert.Len(t, ranked, 2)
	assert.Equal(t, ProvenanceFused, ranked[0].Provenance)
	assert.EqualValues(t, 0, enc.batches.Load())
	assert.EqualValues(t, 1, counters.RerankSkipped.Load())
}

func TestRerank_SkipShortQuery(t *testing.T) {
	enc := &fakeEncoder{base: 0.9}
	r, _ := newTestReranker(t, enc)

	_, outcome := r.Rerank(context.Background(), "alpha topic", fiveCandidates(), 0)
	assert.True(t, outcome.Skipped)
	assert.EqualValues(t, 0, enc.batches.Load())
}

func TestRerank_SkipNilEncoder(t *testing.T) {
	r, _ := newTestReranker(t, nil)
	ranked, outcome := r.Rerank(context.Background(), longQuery, fiveCandidates(), 0)
	assert.True(t, outcome.Skipped)
	assert.Len(t, ranked, 5)
}

func TestRerank_ScoresSortAndFilter(t *testing.T) {
	enc := &fakeEncoder{base: 0.1, scoreFor: map[string]float64{
		"alpha": 0.9,
		"delta": 0.7,
	}}
	r, _ := newTestReranker(t, enc)

	ranked, outcome := r.Rerank(context.Background(), longQuery, fiveCandidates(), 0.35)
	assert.False(t, outcome.Skipped)

	// Only the two passages above the threshold survive, best first.
	require.Len(t, ranked, 2)
	assert.Contains(t, ranked[0].Chunk.Text, "alpha")
	assert.Contains(t, ranked[1].Chunk.Text, "delta")
	assert.Equal(t, ProvenanceReranked, ranked[0].Provenance)
	assert.Equal(t, 0.9, ranked[0].Score)
}

func TestRerank_CacheHitSkipsEncoder(t *testing.T) {
	enc := &fakeEncoder{base: 0.9}
	r, counters := newTestReranker(t, enc)

	first, _ := r.Rerank(context.Background(), longQuery, fiveCandidates(), 0)
	require.NotEmpty(t, first)
	require.EqualValues(t, 1, enc.batches.Load())

	second, outcome := r.Rerank(context.Background(), longQuery, fiveCandidates(), 0)
	assert.True(t, outcome.CacheHit)
	assert.EqualValues(t, 1, enc.batches.Load(), "cache hit must not score again")
	assert.EqualValues(t, 1, counters.RerankCacheHits.Load())

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, second[i].Chunk.ID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRerank_EncoderFailurePassesThrough(t *testing.T) {
	enc := &fakeEncoder{fail: true}
	r, counters := newTestReranker(t, enc)

	candidates := fiveCandidates()
	ranked, outcome := r.Rerank(context.Background(), longQuery, candidates, 0)

	assert.True(t, outcome.Skipped)
	require.Len(t, ranked, len(candidates))
	for i := range candidates {
		assert.Equal(t, candidates[i].Chunk.ID, ranked[i].Chunk.ID)
		assert.Equal(t, ProvenanceFused, ranked[i].Provenance)
	}
	assert.EqualValues(t, 1, counters.RerankSkipped.Load())
}

func TestRerank_BatchesSubmittedSerially(t *testing.T) {
	enc := &fakeEncoder{base: 0.9}
	mem := cache.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	r := NewReranker(enc, mem, NewLimits(LimitsConfig{}), &telemetry.Counters{},
		RerankConfig{BatchSize: 2, Timeout: time.Second})

	_, outcome := r.Rerank(context.Background(), longQuery, fiveCandidates(), 0)
	assert.False(t, outcome.Skipped)
	assert.EqualValues(t, 3, enc.batches.Load(), "5 candidates at batch size 2")
}

func TestRerank_InputNotMutated(t *testing.T) {
	enc := &fakeEncoder{base: 0.9}
	r, _ := newTestReranker(t, enc)

	candidates := fiveCandidates()
	_, _ = r.Rerank(context.Background(), longQuery, candidates, 0)

	for _, c := range candidates {
		assert.Equal(t, ProvenanceFused, c.Provenance, "upstream values stay immutable")
	}
}
