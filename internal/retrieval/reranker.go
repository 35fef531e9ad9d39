package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/dlorp/synapse/internal/cache"
	"github.com/dlorp/synapse/internal/encoder"
	"github.com/dlorp/synapse/internal/telemetry"
)

// Reranker re-scores the fused candidate list with a cross-encoder. Reranking
// is strictly best-effort: any encoder failure or timeout passes the fused
// order through unchanged and the pipeline carries on.
type Reranker struct {
	encoder  encoder.CrossEncoder
	cache    cache.Cache
	limits   *Limits
	counters *telemetry.Counters
	config   RerankConfig
}

// rerankOutcome reports what the reranker actually did for stats.
type rerankOutcome struct {
	Skipped  bool
	CacheHit bool
}

// cachedScore is one entry of a cached ranking. The full scored ranking is
// cached, before any threshold filter, so one cache key always yields
// identical scores regardless of the caller's min_relevance.
type cachedScore struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// NewReranker wires the reranker. A nil encoder disables reranking entirely
// (every call passes through, reported as skipped).
func NewReranker(enc encoder.CrossEncoder, c cache.Cache, limits *Limits, counters *telemetry.Counters, config RerankConfig) *Reranker {
	def := DefaultRerankConfig()
	if config.MinCandidates <= 0 {
		config.MinCandidates = def.MinCandidates
	}
	if config.MinQueryWords <= 0 {
		config.MinQueryWords = def.MinQueryWords
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MinScore == 0 {
		config.MinScore = def.MinScore
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Reranker{
		encoder:  enc,
		cache:    c,
		limits:   limits,
		counters: counters,
		config:   config,
	}
}

// MinScore exposes the configured threshold; the CRAG coherence sigmoid is
// centred on it.
func (r *Reranker) MinScore() float64 {
	return r.config.MinScore
}

// Rerank scores candidates against the query and returns them re-ordered
// with provenance Reranked, dropping those below minScore (0 uses the
// configured threshold). Skip conditions (too few candidates, too short a
// query, no encoder) return the input unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk, minScore float64) ([]ScoredChunk, rerankOutcome) {
	if minScore <= 0 {
		minScore = r.config.MinScore
	}

	if r.encoder == nil ||
		len(candidates) < r.config.MinCandidates ||
		len(strings.Fields(query)) < r.config.MinQueryWords {
		r.counters.RerankSkipped.Add(1)
		return candidates, rerankOutcome{Skipped: true}
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Chunk.ID
	}
	key := "rerank:" + rerankCacheKey(query, ids, r.encoder.ModelName())

	if ranking, ok := r.fromCache(ctx, key, candidates); ok {
		r.counters.RerankCacheHits.Add(1)
		return filterByScore(ranking, minScore), rerankOutcome{CacheHit: true}
	}

	scores, err := r.scoreAll(ctx, query, candidates)
	if err != nil {
		slog.Warn("rerank_failed",
			slog.String("error", err.Error()),
			slog.Int("candidates", len(candidates)))
		r.counters.RerankSkipped.Add(1)
		return candidates, rerankOutcome{Skipped: true}
	}

	ranking := buildRanking(candidates, scores)
	r.toCache(ctx, key, ranking)
	return filterByScore(ranking, minScore), rerankOutcome{}
}

// scoreAll submits batches serially; the encoder parallelizes within a batch.
// The whole pass shares one timeout so a slow encoder cannot stall the
// pipeline past its budget.
func (r *Reranker) scoreAll(ctx context.Context, query string, candidates []ScoredChunk) ([]float64, error) {
	scoreCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	scores := make([]float64, 0, len(candidates))
	for start := 0; start < len(candidates); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		release, err := r.limits.AcquireRerankBatch(scoreCtx)
		if err != nil {
			return nil, err
		}
		passages := make([]string, 0, end-start)
		for _, c := range candidates[start:end] {
			passages = append(passages, c.Chunk.Text)
		}
		batchScores, err := r.encoder.ScoreBatch(scoreCtx, query, passages)
		release()
		if err != nil {
			return nil, err
		}
		scores = append(scores, batchScores...)
	}
	return scores, nil
}

// buildRanking pairs candidates with their scores, sorted descending with a
// chunk-ID tie-break for determinism. Fresh ScoredChunk values; the upstream
// slice is untouched.
func buildRanking(candidates []ScoredChunk, scores []float64) []ScoredChunk {
	ranking := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		ranking[i] = ScoredChunk{
			Chunk:      c.Chunk,
			Score:      scores[i],
			Provenance: ProvenanceReranked,
		}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Chunk.ID < ranking[j].Chunk.ID
	})
	return ranking
}

// filterByScore drops entries below the threshold, preserving order.
func filterByScore(ranking []ScoredChunk, minScore float64) []ScoredChunk {
	filtered := make([]ScoredChunk, 0, len(ranking))
	for _, c := range ranking {
		if c.Score >= minScore {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// fromCache rebuilds a cached ranking over the current candidate set.
func (r *Reranker) fromCache(ctx context.Context, key string, candidates []ScoredChunk) ([]ScoredChunk, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("rerank_cache_get_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var cached []cachedScore
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.Debug("rerank_cache_decode_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if len(cached) != len(candidates) {
		// The key pins the candidate set; a size mismatch means a stale
		// entry from an older index generation. Treat as a miss.
		return nil, false
	}

	byID := make(map[string]*ScoredChunk, len(candidates))
	for i := range candidates {
		byID[candidates[i].Chunk.ID] = &candidates[i]
	}

	ranking := make([]ScoredChunk, 0, len(cached))
	for _, cs := range cached {
		c, ok := byID[cs.ChunkID]
		if !ok {
			return nil, false
		}
		ranking = append(ranking, ScoredChunk{
			Chunk:      c.Chunk,
			Score:      cs.Score,
			Provenance: ProvenanceReranked,
		})
	}
	return ranking, true
}

// toCache persists the full ranking; failures are logged and ignored.
func (r *Reranker) toCache(ctx context.Context, key string, ranking []ScoredChunk) {
	cached := make([]cachedScore, len(ranking))
	for i, c := range ranking {
		cached[i] = cachedScore{ChunkID: c.Chunk.ID, Score: c.Score}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.config.CacheTTL); err != nil {
		slog.Debug("rerank_cache_set_failed", slog.String("error", err.Error()))
	}
}
