package retrieval

import (
	"math"

	"github.com/dlorp/synapse/internal/token"
)

// Fixed weights of the four CRAG quality signals.
const (
	weightKeywordOverlap = 0.30
	weightCoherence      = 0.40
	weightLength         = 0.15
	weightDiversity      = 0.15

	// coherenceSigmoidSteepness controls how sharply scores around the
	// rerank threshold separate into "relevant" and "not".
	coherenceSigmoidSteepness = 6.0

	// coherenceVarianceCap bounds the variance penalty.
	coherenceVarianceCap = 0.3

	// expectedBudgetShare is the fraction of the budget a satisfying result
	// is expected to fill.
	expectedBudgetShare = 0.5
)

// cragStopwords are dropped before keyword overlap is computed.
var cragStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "it": {}, "for": {}, "on": {}, "with": {}, "as": {},
	"by": {}, "at": {}, "this": {}, "that": {}, "be": {}, "are": {},
	"was": {}, "what": {}, "how": {}, "why": {}, "when": {}, "where": {},
	"do": {}, "does": {}, "can": {}, "i": {}, "you": {}, "me": {}, "my": {},
}

// Evaluator computes the CRAG quality score: a single scalar in [0,1] built
// from keyword overlap, score coherence, length adequacy, and source
// diversity. Pure function of its inputs; it cannot fail.
type Evaluator struct {
	// scoreCenter is where the coherence sigmoid is centred; set to the
	// reranker threshold so raw encoder scores and fused scores land on a
	// comparable [0,1] scale.
	scoreCenter float64
}

// NewEvaluator creates an evaluator centred on the given rerank threshold.
func NewEvaluator(rerankThreshold float64) *Evaluator {
	if rerankThreshold <= 0 {
		rerankThreshold = DefaultRerankConfig().MinScore
	}
	return &Evaluator{scoreCenter: rerankThreshold}
}

// Evaluate grades a packed result against its query and budget.
func (e *Evaluator) Evaluate(query string, packed []ScoredChunk, budget int) Decision {
	q := weightKeywordOverlap*e.keywordOverlap(query, packed) +
		weightCoherence*e.coherence(packed) +
		weightLength*e.lengthAdequacy(packed, budget) +
		weightDiversity*e.sourceDiversity(packed)
	return DecideGrade(q)
}

// keywordOverlap is |query keywords ∩ passage keywords| / |query keywords|.
// An empty keyword set means there is nothing to miss: 1.0.
func (e *Evaluator) keywordOverlap(query string, packed []ScoredChunk) float64 {
	queryKeywords := token.Keywords(query, cragStopwords)
	if len(queryKeywords) == 0 {
		return 1.0
	}

	passageKeywords := make(map[string]struct{})
	for _, c := range packed {
		for _, kw := range token.Keywords(c.Chunk.Text, cragStopwords) {
			passageKeywords[kw] = struct{}{}
		}
	}

	unique := make(map[string]struct{}, len(queryKeywords))
	hits := 0
	for _, kw := range queryKeywords {
		if _, dup := unique[kw]; dup {
			continue
		}
		unique[kw] = struct{}{}
		if _, ok := passageKeywords[kw]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(unique))
}

// coherence is mean(scaled scores) * (1 - min(variance, cap)). Scores come
// from the reranker, or from fusion when the rerank was skipped; the sigmoid
// centred on the rerank threshold puts both on a [0,1] scale.
func (e *Evaluator) coherence(packed []ScoredChunk) float64 {
	if len(packed) == 0 {
		return 0
	}

	scaled := make([]float64, len(packed))
	var sum float64
	for i, c := range packed {
		scaled[i] = sigmoid(c.Score, e.scoreCenter)
		sum += scaled[i]
	}
	mean := sum / float64(len(scaled))

	var variance float64
	for _, s := range scaled {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scaled))

	return mean * (1 - math.Min(variance, coherenceVarianceCap))
}

// lengthAdequacy is min(1, total tokens / (half the budget)).
func (e *Evaluator) lengthAdequacy(packed []ScoredChunk, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	expected := expectedBudgetShare * float64(budget)
	return math.Min(1.0, float64(totalTokens(packed))/expected)
}

// sourceDiversity is unique sources over chunk count.
func (e *Evaluator) sourceDiversity(packed []ScoredChunk) float64 {
	if len(packed) == 0 {
		return 0
	}
	sources := make(map[string]struct{}, len(packed))
	for _, c := range packed {
		sources[c.Chunk.SourceURI] = struct{}{}
	}
	return float64(len(sources)) / float64(len(packed))
}

// sigmoid maps a raw score onto (0,1), centred on center.
func sigmoid(score, center float64) float64 {
	return 1.0 / (1.0 + math.Exp(-coherenceSigmoidSteepness*(score-center)))
}
