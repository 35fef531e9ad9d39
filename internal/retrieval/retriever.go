package retrieval

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dlorp/synapse/internal/embed"
	serrors "github.com/dlorp/synapse/internal/errors"
	"github.com/dlorp/synapse/internal/store"
	"github.com/dlorp/synapse/internal/telemetry"
)

// HybridRetriever produces a fused, deduplicated candidate list by running a
// dense ANN pass and a sparse BM25 pass concurrently and joining them with
// Reciprocal Rank Fusion.
type HybridRetriever struct {
	embedder embed.Embedder
	vector   store.VectorIndex
	sparse   store.SparseIndex
	chunks   store.ChunkStore
	limits   *Limits
	counters *telemetry.Counters
	fusion   *rrfFusion
	config   RetrieverConfig
}

// retrievalMeta carries side information for stats and CRAG.
type retrievalMeta struct {
	DenseHits  int
	SparseHits int
	Degraded   bool
}

// NewHybridRetriever wires the retriever with its backends.
func NewHybridRetriever(
	embedder embed.Embedder,
	vector store.VectorIndex,
	sparse store.SparseIndex,
	chunks store.ChunkStore,
	limits *Limits,
	counters *telemetry.Counters,
	config RetrieverConfig,
) *HybridRetriever {
	def := DefaultRetrieverConfig()
	if config.KDense <= 0 {
		config.KDense = def.KDense
	}
	if config.KSparse <= 0 {
		config.KSparse = def.KSparse
	}
	if config.RRFConstant <= 0 {
		config.RRFConstant = def.RRFConstant
	}
	return &HybridRetriever{
		embedder: embedder,
		vector:   vector,
		sparse:   sparse,
		chunks:   chunks,
		limits:   limits,
		counters: counters,
		fusion:   newRRFFusion(config.RRFConstant),
		config:   config,
	}
}

// RetrieveCandidates runs both sub-searches concurrently, fuses the rankings,
// and returns at most k enriched candidates with provenance Fused.
//
// If exactly one sub-search fails the request continues degraded; if both
// fail it returns BackendUnavailable. Cancellation of ctx aborts both.
func (r *HybridRetriever) RetrieveCandidates(ctx context.Context, query string, k int) ([]ScoredChunk, retrievalMeta, error) {
	var meta retrievalMeta

	if err := serrors.FromContext(ctx); err != nil {
		return nil, meta, err
	}

	var denseResults []*store.VectorResult
	var sparseResults []*store.SparseResult
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)

	// Dense pass: embed the query, then ANN search.
	g.Go(func() error {
		release, err := r.limits.AcquireEmbed(gctx)
		if err != nil {
			denseErr = err
			return nil
		}
		vec, err := r.embedder.Embed(gctx, query)
		release()
		if err != nil {
			denseErr = err
			return nil // keep the sparse side alive
		}

		release, err = r.limits.AcquireSearch(gctx)
		if err != nil {
			denseErr = err
			return nil
		}
		defer release()
		denseResults, denseErr = r.vector.Search(gctx, vec, r.config.KDense)
		return nil
	})

	// Sparse pass: BM25 over the inverted index.
	g.Go(func() error {
		release, err := r.limits.AcquireSearch(gctx)
		if err != nil {
			sparseErr = err
			return nil
		}
		defer release()
		sparseResults, sparseErr = r.sparse.Search(gctx, query, r.config.KSparse)
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := serrors.FromContext(ctx); ctxErr != nil {
			return nil, meta, ctxErr
		}
		return nil, meta, serrors.Cancelled(err)
	}
	if err := serrors.FromContext(ctx); err != nil {
		return nil, meta, err
	}

	if denseErr != nil && sparseErr != nil {
		return nil, meta, serrors.BackendUnavailable("both hybrid sub-searches failed",
			errors.Join(denseErr, sparseErr))
	}
	if denseErr != nil || sparseErr != nil {
		meta.Degraded = true
		r.counters.Degraded.Add(1)
		failed, cause := "dense", denseErr
		if sparseErr != nil {
			failed, cause = "sparse", sparseErr
		}
		slog.Warn("hybrid_degraded",
			slog.String("failed_side", failed),
			slog.String("error", cause.Error()))
	}

	meta.DenseHits = len(denseResults)
	meta.SparseHits = len(sparseResults)

	fused := r.fusion.Fuse(denseResults, sparseResults)
	if len(fused) > k {
		fused = fused[:k]
	}

	candidates, err := r.enrich(ctx, fused)
	if err != nil {
		return nil, meta, err
	}
	return candidates, meta, nil
}

// enrich batch-fetches chunk bodies for the fused entries, preserving order.
// Entries whose chunk has vanished from the store are dropped.
func (r *HybridRetriever) enrich(ctx context.Context, fused []*fusedEntry) ([]ScoredChunk, error) {
	if len(fused) == 0 {
		return []ScoredChunk{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, serrors.BackendUnavailable("chunk store unavailable", err)
	}

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]ScoredChunk, 0, len(fused))
	for _, f := range fused {
		c, ok := byID[f.ChunkID]
		if !ok {
			continue
		}
		results = append(results, ScoredChunk{
			Chunk:      c,
			Score:      f.RRFScore,
			Provenance: ProvenanceFused,
		})
	}
	return results, nil
}
