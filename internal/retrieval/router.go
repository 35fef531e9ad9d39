package retrieval

import (
	"regexp"
	"strings"
)

// Compiled pattern tables for query classification, applied after trimming
// and whitespace collapsing. Priority: NoRetrieve > MultiStep > Graph >
// Single; a pattern only fires when its feature flag is set.
var (
	// Greetings and acknowledgments that need no corpus at all.
	greetingPattern = regexp.MustCompile(`(?i)^(hi|hiya|hello|hey|yo|sup|thanks|thank you|thx|ty|ok|okay|bye|goodbye|good (morning|afternoon|evening|night))[\s.!?]*$`)

	// Pure arithmetic expressions ("2+2", "(3*4)/2 =").
	arithmeticPattern = regexp.MustCompile(`^\s*[-+*/()\d\s.]+\s*=?\s*$`)

	// Ranked verbs and conjunction shapes that mark multi-part questions.
	multiStepVerbPattern = regexp.MustCompile(`(?i)\b(compare|analyze|analyse|synthesize|synthesise|contrast|evaluate)\b`)
	multiStepJoinPattern = regexp.MustCompile(`(?i)\?.+\?|\b(and also|as well as|and then)\b`)

	// Capitalized multi-word noun phrases ("Raft Consensus", "Lamport Clocks").
	entityPhrasePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-zA-Z]+)+\b`)
)

// Classify decides whether to retrieve, and with which strategy, before any
// embedding or index call. Pure pattern work over the query text; it never
// fails and stays well under the router's millisecond budget.
func Classify(query string, cfg RouterConfig) Classification {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(query)), " ")
	if normalized == "" {
		return Classification{
			Strategy:   StrategyNoRetrieve,
			Complexity: ComplexityTrivial,
			Reasoning:  "empty",
		}
	}

	minWords := cfg.MinWordsForRetrieval
	if minWords <= 0 {
		minWords = DefaultRouterConfig().MinWordsForRetrieval
	}
	words := strings.Fields(normalized)

	if greetingPattern.MatchString(normalized) {
		return Classification{
			Strategy:   StrategyNoRetrieve,
			Complexity: ComplexityTrivial,
			Reasoning:  "greeting",
		}
	}
	if arithmeticPattern.MatchString(normalized) {
		return Classification{
			Strategy:   StrategyNoRetrieve,
			Complexity: ComplexityTrivial,
			Reasoning:  "arithmetic",
		}
	}
	if len(words) < minWords {
		return Classification{
			Strategy:   StrategyNoRetrieve,
			Complexity: ComplexityTrivial,
			Reasoning:  "below_min_words",
		}
	}

	if cfg.EnableMultiStep &&
		(multiStepVerbPattern.MatchString(normalized) || multiStepJoinPattern.MatchString(normalized)) {
		return Classification{
			Strategy:   StrategyMultiStep,
			Complexity: ComplexityComplex,
			Reasoning:  "multi_part_question",
		}
	}

	if cfg.EnableGraph && len(entityPhrasePattern.FindAllString(query, 3)) >= 2 {
		return Classification{
			Strategy:   StrategyGraph,
			Complexity: ComplexityComplex,
			Reasoning:  "entity_relationships",
		}
	}

	return Classification{
		Strategy:   StrategySingle,
		Complexity: gradeComplexity(len(words)),
		Reasoning:  "default",
	}
}

// gradeComplexity maps query length onto the complexity scale.
func gradeComplexity(wordCount int) Complexity {
	switch {
	case wordCount <= 4:
		return ComplexitySimple
	case wordCount <= 15:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
