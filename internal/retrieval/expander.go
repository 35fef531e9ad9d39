package retrieval

import (
	"strings"
)

// defaultMaxExpansions bounds how many synonyms a single term contributes.
const defaultMaxExpansions = 3

// Expander augments a query with synonyms from a static table. Used by the
// CRAG Partial correction: the expanded query re-runs the whole hybrid
// pipeline once and the result sets are merged.
type Expander struct {
	synonyms      map[string][]string
	maxExpansions int
}

// ExpanderOption configures the expander.
type ExpanderOption func(*Expander)

// WithMaxExpansions sets the maximum synonyms added per query term.
func WithMaxExpansions(n int) ExpanderOption {
	return func(e *Expander) {
		if n > 0 {
			e.maxExpansions = n
		}
	}
}

// WithSynonyms merges custom mappings over the default table.
func WithSynonyms(synonyms map[string][]string) ExpanderOption {
	return func(e *Expander) {
		for k, v := range synonyms {
			e.synonyms[strings.ToLower(k)] = v
		}
	}
}

// NewExpander creates an expander seeded with the default synonym table.
func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{
		synonyms:      make(map[string][]string, len(DefaultSynonyms)),
		maxExpansions: defaultMaxExpansions,
	}
	for k, v := range DefaultSynonyms {
		e.synonyms[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the query with synonym terms appended, deduplicated
// case-insensitively. Original terms always come first so exact matches keep
// their weight; a query with no known terms comes back with only its own
// terms, joined by single spaces and with repeated terms dropped.
func (e *Expander) Expand(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return query
	}

	seen := make(map[string]bool, len(terms))
	expanded := make([]string, 0, len(terms)*2)
	for _, term := range terms {
		lower := strings.ToLower(term)
		if !seen[lower] {
			expanded = append(expanded, term)
			seen[lower] = true
		}
	}

	for _, term := range terms {
		added := 0
		for _, syn := range e.synonyms[strings.ToLower(term)] {
			if added >= e.maxExpansions {
				break
			}
			lower := strings.ToLower(syn)
			if !seen[lower] {
				expanded = append(expanded, syn)
				seen[lower] = true
				added++
			}
		}
	}

	return strings.Join(expanded, " ")
}
