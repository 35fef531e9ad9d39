package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// PassageTokenizerName is the registry name of the identifier-aware tokenizer.
	PassageTokenizerName = "passage_tokenizer"

	// PassageStopFilterName is the registry name of the stop word filter.
	PassageStopFilterName = "passage_stop"

	// PassageAnalyzerName is the registry name of the composed analyzer.
	PassageAnalyzerName = "passage_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(PassageTokenizerName, passageTokenizerConstructor)
	_ = registry.RegisterTokenFilter(PassageStopFilterName, passageStopFilterConstructor)
}

// BleveSparseIndex wraps Bleve v2 for BM25 keyword search over chunk text.
type BleveSparseIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config SparseConfig
	closed bool
}

// bleveChunkDoc is the document shape indexed by Bleve.
type bleveChunkDoc struct {
	Text string `json:"text"`
}

// NewBleveSparseIndex creates or opens a BM25 index.
// If path is empty, an in-memory index is created (used by tests).
func NewBleveSparseIndex(path string, config SparseConfig) (*BleveSparseIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open sparse index: %w", err)
	}

	return &BleveSparseIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createIndexMapping builds the Bleve mapping with the passage analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(PassageAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": PassageTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			PassageStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = PassageAnalyzerName
	return indexMapping, nil
}

// Index adds chunks to the index.
func (b *BleveSparseIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("sparse index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveChunkDoc{Text: c.Text}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search returns chunks matching the query, scored by BM25.
func (b *BleveSparseIndex) Search(ctx context.Context, queryStr string, k int) ([]*SparseResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("sparse index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*SparseResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k
	searchRequest.IncludeLocations = true // for matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	results := make([]*SparseResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &SparseResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes chunks from the index.
func (b *BleveSparseIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("sparse index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (b *BleveSparseIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index.
func (b *BleveSparseIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms collects the matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "text" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

var _ SparseIndex = (*BleveSparseIndex)(nil)

// passageTokenizerConstructor creates the identifier-aware tokenizer.
func passageTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &blevePassageTokenizer{}, nil
}

// blevePassageTokenizer implements analysis.Tokenizer over TokenizePassage.
type blevePassageTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *blevePassageTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizePassage(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, tok := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), tok)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(tok)

		result = append(result, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

// passageStopFilterConstructor creates the stop word filter.
func passageStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &blevePassageStopFilter{
		stopWords: BuildStopWordMap(DefaultStopWords),
	}, nil
}

// blevePassageStopFilter implements analysis.TokenFilter.
type blevePassageStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *blevePassageStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
