package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dlorp/synapse/internal/cache"
	"github.com/dlorp/synapse/internal/embed"
	"github.com/dlorp/synapse/internal/encoder"
	serrors "github.com/dlorp/synapse/internal/errors"
	"github.com/dlorp/synapse/internal/store"
	"github.com/dlorp/synapse/internal/telemetry"
	"github.com/dlorp/synapse/internal/token"
	"github.com/dlorp/synapse/internal/websearch"
)

// Soft per-stage latency budgets. Exceeding one logs a warning; only the
// overall request deadline fails the request.
const (
	softRetrieverBudget = 200 * time.Millisecond
	softCragBudget      = time.Second
)

// webFallbackHits is how many web results the Irrelevant correction pulls in.
const webFallbackHits = 5

// Deps are the capabilities the pipeline consumes. Embedder, Vector, Sparse
// and Chunks are required; the rest are optional.
type Deps struct {
	Embedder  embed.Embedder
	Vector    store.VectorIndex
	Sparse    store.SparseIndex
	Chunks    store.ChunkStore
	Encoder   encoder.CrossEncoder // nil: reranking always skipped
	WebSearch websearch.Client     // nil: web fallback unavailable
	Cache     cache.Cache          // nil: caching disabled
	Tokens    token.Counter        // nil: shared default tokenizer
}

// Config is the construction-time configuration of the pipeline.
type Config struct {
	Router         RouterConfig
	Retriever      RetrieverConfig
	Rerank         RerankConfig
	Limits         LimitsConfig
	Synonyms       map[string][]string
	ResultCacheTTL time.Duration
	EventBuffer    int
}

// Pipeline is the retrieval core: router, hybrid retriever, reranker, budget
// packer and CRAG evaluator behind one Retrieve operation. Stateless between
// requests apart from the single-flight group and the metrics counters.
type Pipeline struct {
	routerCfg RouterConfig
	retriever *HybridRetriever
	reranker  *Reranker
	evaluator *Evaluator
	expander  *Expander
	webSearch websearch.Client
	cache     cache.Cache
	tokens    token.Counter
	counters  *telemetry.Counters
	emitter   *Emitter
	flight    singleflight.Group
	resultTTL time.Duration
}

// flightResult lets coalesced callers share a partial result with its error.
type flightResult struct {
	res *Result
	err error
}

// New validates dependencies and assembles the pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, serrors.InvalidInput("embedder is required")
	}
	if deps.Vector == nil {
		return nil, serrors.InvalidInput("vector index is required")
	}
	if deps.Sparse == nil {
		return nil, serrors.InvalidInput("sparse index is required")
	}
	if deps.Chunks == nil {
		return nil, serrors.InvalidInput("chunk store is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Tokens == nil {
		deps.Tokens = token.Default()
	}
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = DefaultResultCacheTTL
	}

	counters := &telemetry.Counters{}
	limits := NewLimits(cfg.Limits)

	expanderOpts := []ExpanderOption{}
	if len(cfg.Synonyms) > 0 {
		expanderOpts = append(expanderOpts, WithSynonyms(cfg.Synonyms))
	}

	reranker := NewReranker(deps.Encoder, deps.Cache, limits, counters, cfg.Rerank)

	return &Pipeline{
		routerCfg: cfg.Router,
		retriever: NewHybridRetriever(deps.Embedder, deps.Vector, deps.Sparse, deps.Chunks,
			limits, counters, cfg.Retriever),
		reranker:  reranker,
		evaluator: NewEvaluator(reranker.MinScore()),
		expander:  NewExpander(expanderOpts...),
		webSearch: deps.WebSearch,
		cache:     deps.Cache,
		tokens:    deps.Tokens,
		counters:  counters,
		emitter:   NewEmitter(cfg.EventBuffer, counters),
		resultTTL: cfg.ResultCacheTTL,
	}, nil
}

// Counters exposes the pipeline metrics.
func (p *Pipeline) Counters() *telemetry.Counters {
	return p.counters
}

// Events exposes the fire-and-forget event stream.
func (p *Pipeline) Events() <-chan Event {
	return p.emitter.Events()
}

// Retrieve answers one query within the request's deadline. Identical
// concurrent requests coalesce onto one execution; the downstream backends
// see a single embed, a single pair of searches, and a single rerank.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	// Validate the caller's raw values before defaults clamp them.
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.applyDefaults()
	p.counters.Requests.Add(1)

	classification := Classify(query, p.routerCfg)
	if opts.ForceStrategy != "" {
		classification.Strategy = opts.ForceStrategy
		classification.Reasoning = "forced"
	}
	p.emitter.Emit(Event{Type: EventClassified, Query: query, At: time.Now()})

	// Router short-circuit: nothing downstream runs, no embedding, no index.
	if classification.Strategy == StrategyNoRetrieve {
		p.counters.NoRetrieve.Add(1)
		res := &Result{
			Chunks: []ScoredChunk{},
			// Vacuously relevant: there was nothing to retrieve.
			Decision: Decision{Grade: GradeRelevant, Score: 1.0},
			Stats: Stats{
				Classification: classification,
				Elapsed:        time.Since(start),
			},
		}
		p.emitter.Emit(Event{Type: EventCompleted, Query: query, At: time.Now()})
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	fp := retrievalFingerprint(query, opts)
	v, _, shared := p.flight.Do(fp, func() (interface{}, error) {
		res, err := p.serve(ctx, query, opts, classification, start)
		return flightResult{res: res, err: err}, nil
	})
	if shared {
		p.counters.CoalescedRequests.Add(1)
	}

	fr := v.(flightResult)
	if fr.err != nil && serrors.KindOf(fr.err) == serrors.KindCancelled {
		// Cancellation never returns partial results.
		return nil, fr.err
	}
	p.emitter.Emit(Event{Type: EventCompleted, Query: query, At: time.Now()})
	return fr.res, fr.err
}

// serve runs the cached-or-full pipeline for one fingerprint.
func (p *Pipeline) serve(ctx context.Context, query string, opts Options, classification Classification, start time.Time) (*Result, error) {
	fp := retrievalFingerprint(query, opts)

	if opts.UseCache {
		if res, ok := p.resultFromCache(ctx, fp); ok {
			p.counters.CacheHits.Add(1)
			res.Stats.Classification = classification
			res.Stats.CacheHit = true
			res.Stats.Elapsed = time.Since(start)
			return res, nil
		}
		p.counters.CacheMisses.Add(1)
	}

	res, err := p.retrieveAndCorrect(ctx, query, opts, classification)
	if res != nil {
		res.Stats.Elapsed = time.Since(start)
	}
	if err != nil {
		return res, mapPipelineError(ctx, err)
	}

	if opts.UseCache && len(res.Chunks) > 0 {
		// Empty results are never cached: absence means unknown.
		p.resultToCache(ctx, fp, res)
	}
	return res, nil
}

// pass is one full retrieve→rerank→pack run for a query.
type pass struct {
	candidates []ScoredChunk // fused, pre-rerank
	ranked     []ScoredChunk // post-rerank (or fused pass-through)
	packed     []ScoredChunk
	meta       retrievalMeta
	rerank     rerankOutcome
}

// runPass executes retrieve→rerank→pack once.
func (p *Pipeline) runPass(ctx context.Context, query string, opts Options) (pass, error) {
	var ps pass

	retrStart := time.Now()
	candidates, meta, err := p.retriever.RetrieveCandidates(ctx, query, opts.MaxCandidates)
	if err != nil {
		return ps, err
	}
	if elapsed := time.Since(retrStart); elapsed > softRetrieverBudget {
		slog.Warn("retriever_soft_budget_exceeded",
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", softRetrieverBudget))
	}
	ps.candidates = candidates
	ps.meta = meta
	p.emitter.Emit(Event{Type: EventRetrieved, Query: query, Count: len(candidates), At: time.Now()})

	rerankInput := candidates
	if len(rerankInput) > opts.RerankK {
		rerankInput = rerankInput[:opts.RerankK]
	}
	ps.ranked, ps.rerank = p.reranker.Rerank(ctx, query, rerankInput, opts.MinRelevance)
	p.emitter.Emit(Event{Type: EventReranked, Query: query, Count: len(ps.ranked), At: time.Now()})

	if err := serrors.FromContext(ctx); err != nil {
		return ps, err
	}

	ps.packed = Pack(ps.ranked, opts.TokenBudget)
	p.emitter.Emit(Event{Type: EventPacked, Query: query, Count: len(ps.packed), At: time.Now()})
	return ps, nil
}

// retrieveAndCorrect runs the first pass, evaluates it, and applies at most
// one correction. The final decision is always the post-correction score.
func (p *Pipeline) retrieveAndCorrect(ctx context.Context, query string, opts Options, classification Classification) (*Result, error) {
	first, err := p.runPass(ctx, query, opts)
	if err != nil {
		return p.partialResult(classification, first), err
	}

	stats := Stats{
		Classification:  classification,
		DenseHits:       first.meta.DenseHits,
		SparseHits:      first.meta.SparseHits,
		FusedCandidates: len(first.candidates),
		Degraded:        first.meta.Degraded,
		RerankSkipped:   first.rerank.Skipped,
		RerankCacheHit:  first.rerank.CacheHit,
	}

	cragStart := time.Now()
	decision := p.evaluator.Evaluate(query, first.packed, opts.TokenBudget)
	p.emitter.Emit(Event{Type: EventEvaluated, Query: query, Count: len(first.packed), At: time.Now()})

	result := &Result{
		Chunks:   finalizeChunks(first.packed),
		Decision: decision,
		Stats:    stats,
	}

	switch decision.Grade {
	case GradeRelevant:
		// Good enough; return immediately.

	case GradePartial:
		p.applyExpansion(ctx, query, opts, first, result)

	case GradeIrrelevant:
		p.applyWebFallback(ctx, query, opts, first, result)
	}

	if elapsed := time.Since(cragStart); elapsed > softCragBudget {
		slog.Warn("crag_soft_budget_exceeded",
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", softCragBudget))
	}
	return result, nil
}

// applyExpansion handles the Partial correction: expand the query with
// synonyms, re-run the whole pipeline once, merge preferring higher scores,
// re-pack, re-evaluate. A correction that surfaces nothing new is discarded.
func (p *Pipeline) applyExpansion(ctx context.Context, query string, opts Options, first pass, result *Result) {
	expanded := p.expander.Expand(query)
	if expanded == query {
		return
	}

	result.Stats.CorrectionAttempted = true
	second, err := p.runPass(ctx, expanded, opts)
	if err != nil {
		slog.Warn("query_expansion_failed", slog.String("error", err.Error()))
		return
	}

	merged := mergePreferHigher(first.ranked, second.ranked)
	packed := Pack(merged, opts.TokenBudget)

	// A no-op correction is worse than none: keep the original result
	// unless the merge actually surfaced a new chunk (or there was nothing
	// before).
	if len(first.packed) > 0 && !hasNewChunk(first.packed, packed) {
		return
	}

	correction := CorrectionQueryExpansion
	result.Chunks = finalizeChunks(packed)
	result.Decision = p.evaluator.Evaluate(query, packed, opts.TokenBudget)
	result.Correction = &correction
	p.counters.Corrections.Add(1)
	p.emitter.Emit(Event{Type: EventCorrected, Query: query, Count: len(packed), At: time.Now()})
}

// applyWebFallback handles the Irrelevant correction: pull web hits, convert
// them to synthetic chunks, rerank the combined pool, re-pack, re-evaluate.
func (p *Pipeline) applyWebFallback(ctx context.Context, query string, opts Options, first pass, result *Result) {
	if !opts.AllowWebFallback || p.webSearch == nil {
		return
	}

	result.Stats.CorrectionAttempted = true
	p.counters.WebFallbacks.Add(1)

	hits, err := p.webSearch.Search(ctx, query, webFallbackHits)
	if err != nil {
		slog.Warn("web_fallback_failed", slog.String("error", err.Error()))
		return
	}
	if len(hits) == 0 {
		return
	}

	pool := make([]ScoredChunk, 0, len(first.candidates)+len(hits))
	pool = append(pool, first.candidates...)
	for i, hit := range hits {
		pool = append(pool, p.webChunk(hit, i))
	}

	ranked, _ := p.reranker.Rerank(ctx, query, pool, opts.MinRelevance)
	packed := Pack(ranked, opts.TokenBudget)
	if len(packed) == 0 {
		return
	}

	correction := CorrectionWebFallback
	result.Chunks = finalizeChunks(packed)
	result.Decision = p.evaluator.Evaluate(query, packed, opts.TokenBudget)
	result.Correction = &correction
	p.counters.Corrections.Add(1)
	p.emitter.Emit(Event{Type: EventCorrected, Query: query, Count: len(packed), At: time.Now()})
}

// webChunk converts a web hit into a synthetic chunk. The token count comes
// from the same tokenizer used everywhere else, treating the snippet as
// opaque text.
func (p *Pipeline) webChunk(hit websearch.Result, rank int) ScoredChunk {
	text := hit.Snippet
	if text == "" {
		text = hit.Title
	}
	count := p.tokens.Count(text)
	if count < 1 {
		count = 1
	}
	return ScoredChunk{
		Chunk: &store.Chunk{
			ID:         store.ChunkID(hit.URL, 0, len(text)),
			SourceURI:  hit.URL,
			ByteEnd:    len(text),
			Text:       text,
			TokenCount: count,
			Language:   "web",
			Metadata:   map[string]string{"title": hit.Title},
		},
		Score:      1.0 / float64(rank+1),
		Provenance: ProvenanceWeb,
	}
}

// partialResult wraps whatever a failed pass produced so Deadline errors can
// carry partial output.
func (p *Pipeline) partialResult(classification Classification, ps pass) *Result {
	return &Result{
		Chunks:   finalizeChunks(ps.packed),
		Decision: Decision{Grade: GradeIrrelevant},
		Stats: Stats{
			Classification: classification,
			Degraded:       ps.meta.Degraded,
		},
	}
}

// finalizeChunks enforces the result invariants: no duplicate chunk IDs and
// non-increasing scores.
func finalizeChunks(chunks []ScoredChunk) []ScoredChunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.Chunk.ID]; dup {
			continue
		}
		seen[c.Chunk.ID] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// mergePreferHigher merges two ranked lists by chunk ID, keeping the
// higher-scoring duplicate, sorted by score descending.
func mergePreferHigher(a, b []ScoredChunk) []ScoredChunk {
	best := make(map[string]ScoredChunk, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, list := range [][]ScoredChunk{a, b} {
		for _, c := range list {
			existing, ok := best[c.Chunk.ID]
			if !ok {
				best[c.Chunk.ID] = c
				order = append(order, c.Chunk.ID)
				continue
			}
			if c.Score > existing.Score {
				best[c.Chunk.ID] = c
			}
		}
	}

	merged := make([]ScoredChunk, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	return merged
}

// hasNewChunk reports whether next contains a chunk ID absent from prev.
func hasNewChunk(prev, next []ScoredChunk) bool {
	prevIDs := make(map[string]struct{}, len(prev))
	for _, c := range prev {
		prevIDs[c.Chunk.ID] = struct{}{}
	}
	for _, c := range next {
		if _, ok := prevIDs[c.Chunk.ID]; !ok {
			return true
		}
	}
	return false
}

// resultEnvelope is the cached form of a Result.
type resultEnvelope struct {
	Chunks     []envelopeChunk `json:"chunks"`
	Decision   Decision        `json:"decision"`
	Correction *Correction     `json:"correction,omitempty"`
}

// envelopeChunk flattens a ScoredChunk for serialization.
type envelopeChunk struct {
	Chunk      *store.Chunk `json:"chunk"`
	Score      float64      `json:"score"`
	Provenance Provenance   `json:"provenance"`
}

// resultFromCache loads a cached result; any failure is a miss.
func (p *Pipeline) resultFromCache(ctx context.Context, fp string) (*Result, bool) {
	data, ok, err := p.cache.Get(ctx, "result:"+fp)
	if err != nil {
		slog.Debug("result_cache_get_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Debug("result_cache_decode_failed", slog.String("error", err.Error()))
		return nil, false
	}

	chunks := make([]ScoredChunk, len(env.Chunks))
	for i, ec := range env.Chunks {
		chunks[i] = ScoredChunk{Chunk: ec.Chunk, Score: ec.Score, Provenance: ec.Provenance}
	}
	return &Result{
		Chunks:     chunks,
		Decision:   env.Decision,
		Correction: env.Correction,
	}, true
}

// resultToCache stores a result; failures are logged and ignored.
func (p *Pipeline) resultToCache(ctx context.Context, fp string, res *Result) {
	env := resultEnvelope{
		Chunks:     make([]envelopeChunk, len(res.Chunks)),
		Decision:   res.Decision,
		Correction: res.Correction,
	}
	for i, c := range res.Chunks {
		env.Chunks[i] = envelopeChunk{Chunk: c.Chunk, Score: c.Score, Provenance: c.Provenance}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, "result:"+fp, data, p.resultTTL); err != nil {
		slog.Debug("result_cache_set_failed", slog.String("error", err.Error()))
	}
}

// mapPipelineError converts raw context errors from deep in a stage into the
// structured taxonomy; already-structured errors pass through.
func mapPipelineError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var se *serrors.Error
	if errors.As(err, &se) {
		return err
	}
	if ctxErr := serrors.FromContext(ctx); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("retrieval failed: %w", err)
}
