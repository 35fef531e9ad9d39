// Package retrieval implements the query-serving core: routing, hybrid
// dense+sparse retrieval fused by RRF, cross-encoder reranking, token-budget
// packing, and the corrective (CRAG) evaluation loop.
package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlorp/synapse/internal/store"
)

// Provenance records which pipeline stage produced a score. It only ever
// advances (Dense/Sparse -> Fused -> Reranked); a stage never mutates an
// upstream ScoredChunk, it produces a fresh one.
type Provenance string

const (
	ProvenanceDense    Provenance = "dense"
	ProvenanceSparse   Provenance = "sparse"
	ProvenanceFused    Provenance = "fused"
	ProvenanceReranked Provenance = "reranked"
	ProvenanceWeb      Provenance = "web"
)

// ScoredChunk pairs a chunk with a stage score. Scores are comparable only
// within a single provenance (higher is better).
type ScoredChunk struct {
	Chunk      *store.Chunk
	Score      float64
	Provenance Provenance
}

// Strategy is the retrieval strategy chosen by the router.
type Strategy string

const (
	StrategyNoRetrieve Strategy = "no_retrieve"
	StrategySingle     Strategy = "single"
	StrategyMultiStep  Strategy = "multi_step"
	StrategyGraph      Strategy = "graph"
)

// Complexity grades how demanding a query is.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Classification is the router's verdict for one query. It is a
// deterministic function of the query text and the router configuration.
type Classification struct {
	Strategy   Strategy
	Complexity Complexity
	Reasoning  string
}

// Grade is the CRAG quality trichotomy.
type Grade string

const (
	GradeRelevant   Grade = "relevant"
	GradePartial    Grade = "partial"
	GradeIrrelevant Grade = "irrelevant"
)

// CRAG decision thresholds. Relevant strictly above the upper bound,
// Irrelevant at or below the lower bound, Partial between.
const (
	RelevantThreshold   = 0.75
	IrrelevantThreshold = 0.50
)

// Decision is the CRAG quality verdict with its underlying score in [0,1].
type Decision struct {
	Grade Grade
	Score float64
}

// DecideGrade maps a quality score onto the fixed thresholds.
func DecideGrade(score float64) Decision {
	switch {
	case score > RelevantThreshold:
		return Decision{Grade: GradeRelevant, Score: score}
	case score > IrrelevantThreshold:
		return Decision{Grade: GradePartial, Score: score}
	default:
		return Decision{Grade: GradeIrrelevant, Score: score}
	}
}

// Correction names the corrective strategy applied after evaluation.
type Correction string

const (
	CorrectionQueryExpansion Correction = "query_expansion"
	CorrectionWebFallback    Correction = "web_fallback"
)

// Stats describes what actually happened while serving one request.
// Append-only: stages add flags, nothing resets them.
type Stats struct {
	Classification Classification

	DenseHits       int
	SparseHits      int
	FusedCandidates int

	// Degraded is set when exactly one hybrid sub-search failed and the
	// request continued on the surviving one.
	Degraded bool

	RerankSkipped  bool
	RerankCacheHit bool

	// CacheHit is set when the whole result came from the retrieval cache.
	CacheHit bool

	// CorrectionAttempted is set when a correction ran, even if it failed
	// and the uncorrected result was returned.
	CorrectionAttempted bool

	Elapsed time.Duration
}

// Result is the outcome of one retrieval request.
//
// Invariants: chunk token counts sum to at most the request budget, chunks
// are sorted by score descending, and no chunk ID repeats.
type Result struct {
	Chunks     []ScoredChunk
	Decision   Decision
	Stats      Stats
	Correction *Correction
}

// chunkIDs returns the set of chunk IDs present in the result.
func (r *Result) chunkIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Chunks))
	for _, c := range r.Chunks {
		ids[c.Chunk.ID] = struct{}{}
	}
	return ids
}

// normalizeQuery trims and collapses whitespace for fingerprints and cache keys.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// retrievalFingerprint derives the single-flight / result-cache key from the
// normalized query and every parameter that changes the outcome.
func retrievalFingerprint(query string, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|%g|%t|%s",
		normalizeQuery(query), opts.TokenBudget, opts.MaxCandidates,
		opts.RerankK, opts.MinRelevance, opts.AllowWebFallback, opts.ForceStrategy)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// rerankCacheKey derives the reranker cache key. Two requests with the same
// key must yield identical scores, so the key pins the normalized query, the
// sorted candidate set, and the encoder model identity.
func rerankCacheKey(query string, chunkIDs []string, model string) string {
	sorted := make([]string, len(chunkIDs))
	copy(sorted, chunkIDs)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
