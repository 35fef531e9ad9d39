package retrieval

import (
	"fmt"
	"time"

	serrors "github.com/dlorp/synapse/internal/errors"
)

// Per-request defaults.
const (
	DefaultTokenBudget   = 8192
	DefaultMaxCandidates = 100
	DefaultRerankK       = 50
	DefaultMinRelevance  = 0.35
	DefaultTimeout       = 30 * time.Second
)

// Options configure one retrieval request. Build from DefaultOptions and
// override fields. TokenBudget and UseCache pass through as given (a zero
// budget legitimately means "nothing fits"); the other numeric fields get
// defaults applied when unset.
type Options struct {
	// TokenBudget bounds the summed token counts of returned chunks.
	TokenBudget int

	// MaxCandidates is k at the dense/sparse stage.
	MaxCandidates int

	// RerankK bounds how many fused candidates enter the reranker.
	RerankK int

	// MinRelevance is the reranker score threshold.
	MinRelevance float64

	// AllowWebFallback permits the CRAG web-search correction.
	AllowWebFallback bool

	// Timeout is the overall request deadline.
	Timeout time.Duration

	// UseCache enables the retrieval-result cache for this request.
	UseCache bool

	// ForceStrategy overrides the router when non-empty.
	ForceStrategy Strategy
}

// DefaultOptions returns the documented request defaults.
func DefaultOptions() Options {
	return Options{
		TokenBudget:   DefaultTokenBudget,
		MaxCandidates: DefaultMaxCandidates,
		RerankK:       DefaultRerankK,
		MinRelevance:  DefaultMinRelevance,
		Timeout:       DefaultTimeout,
		UseCache:      true,
	}
}

// applyDefaults fills unset numeric fields.
func (o Options) applyDefaults() Options {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.RerankK <= 0 {
		o.RerankK = DefaultRerankK
	}
	if o.RerankK > o.MaxCandidates {
		// rerank_k defaults to min(50, candidates) when unconstrained.
		o.RerankK = o.MaxCandidates
	}
	if o.MinRelevance == 0 {
		o.MinRelevance = DefaultMinRelevance
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// validate rejects malformed requests at the API boundary.
func (o Options) validate() error {
	if o.MaxCandidates > 0 && o.RerankK > 0 && o.MaxCandidates < o.RerankK {
		return serrors.InvalidInput(fmt.Sprintf(
			"max_candidates (%d) must be >= rerank_k (%d)", o.MaxCandidates, o.RerankK))
	}
	if o.MinRelevance < 0 || o.MinRelevance > 1 {
		return serrors.InvalidInput(fmt.Sprintf(
			"min_relevance (%g) must be in [0,1]", o.MinRelevance))
	}
	switch o.ForceStrategy {
	case "", StrategyNoRetrieve, StrategySingle, StrategyMultiStep, StrategyGraph:
	default:
		return serrors.InvalidInput(fmt.Sprintf("unknown strategy %q", o.ForceStrategy))
	}
	return nil
}

// RouterConfig configures the query classifier.
type RouterConfig struct {
	// MinWordsForRetrieval routes shorter queries to NoRetrieve (default: 2).
	MinWordsForRetrieval int

	// EnableMultiStep enables the MultiStep strategy (default: false).
	EnableMultiStep bool

	// EnableGraph enables the Graph strategy (default: false).
	EnableGraph bool
}

// DefaultRouterConfig returns router defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{MinWordsForRetrieval: 2}
}

// RetrieverConfig configures the hybrid retriever.
type RetrieverConfig struct {
	// KDense is k for the dense ANN search (default: 100).
	KDense int

	// KSparse is k for the sparse BM25 search (default: 100).
	KSparse int

	// RRFConstant is the RRF smoothing constant (default: 60).
	RRFConstant int
}

// DefaultRetrieverConfig returns retriever defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{KDense: 100, KSparse: 100, RRFConstant: DefaultRRFConstant}
}

// RerankConfig configures the two-stage reranker.
type RerankConfig struct {
	// MinCandidates skips reranking below this candidate count (default: 5).
	MinCandidates int

	// MinQueryWords skips reranking below this query word count (default: 5).
	MinQueryWords int

	// BatchSize is the cross-encoder batch size (default: 32).
	BatchSize int

	// MinScore drops candidates scoring below it (default: 0.35).
	MinScore float64

	// Timeout bounds the whole scoring pass (default: 500ms).
	Timeout time.Duration

	// CacheTTL is the reranker cache entry lifetime (default: 1h).
	CacheTTL time.Duration
}

// DefaultRerankConfig returns reranker defaults.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		MinCandidates: 5,
		MinQueryWords: 5,
		BatchSize:     32,
		MinScore:      0.35,
		Timeout:       500 * time.Millisecond,
		CacheTTL:      time.Hour,
	}
}

// LimitsConfig bounds concurrent use of the shared backends when an outer
// mode (council, benchmark) runs several requests in parallel.
type LimitsConfig struct {
	// MaxConcurrentEmbeds bounds embedder calls (default: 4).
	MaxConcurrentEmbeds int

	// MaxConcurrentSearches bounds index searches (default: 8).
	MaxConcurrentSearches int

	// MaxConcurrentRerankBatches bounds cross-encoder batches (default: 2;
	// each batch parallelizes internally).
	MaxConcurrentRerankBatches int
}

// DefaultLimitsConfig returns the documented bounds.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxConcurrentEmbeds:        4,
		MaxConcurrentSearches:      8,
		MaxConcurrentRerankBatches: 2,
	}
}

// CacheTTLs for the retrieval-result key space.
const (
	// DefaultResultCacheTTL is the retrieval-result cache entry lifetime.
	DefaultResultCacheTTL = time.Hour
)
