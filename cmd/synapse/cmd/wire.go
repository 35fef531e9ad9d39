package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dlorp/synapse/internal/cache"
	"github.com/dlorp/synapse/internal/config"
	"github.com/dlorp/synapse/internal/embed"
	"github.com/dlorp/synapse/internal/encoder"
	"github.com/dlorp/synapse/internal/retrieval"
	"github.com/dlorp/synapse/internal/store"
	"github.com/dlorp/synapse/internal/websearch"
)

// Index file names inside the index directory.
const (
	sparseIndexName = "sparse.bleve"
	vectorIndexName = "vectors.hnsw"
	chunkStoreName  = "chunks.db"
	lockFileName    = ".build.lock"
)

// backends bundles the opened index triple plus clients.
type backends struct {
	embedder embed.Embedder
	vector   *store.HNSWIndex
	sparse   *store.BleveSparseIndex
	chunks   *store.SQLiteChunkStore
	encoder  encoder.CrossEncoder
	web      websearch.Client
	cache    cache.Cache

	vectorPath string
}

// openBackends opens the index triple and constructs external clients.
// loadVectors controls whether an existing HNSW snapshot is loaded (query
// path) or a fresh graph is started (index path).
func openBackends(cfg *config.Config, loadVectors bool) (*backends, error) {
	dir := cfg.Index.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	embedderCfg := embed.DefaultOllamaConfig()
	embedderCfg.Host = cfg.Embedder.Host
	embedderCfg.Model = cfg.Embedder.Model
	embedderCfg.Dimensions = cfg.Embedder.Dimensions
	embedderCfg.Timeout = time.Duration(cfg.Embedder.TimeoutSecs) * time.Second
	embedder := embed.NewCachedEmbedder(embed.NewOllamaEmbedder(embedderCfg), cfg.Embedder.CacheSize)

	sparse, err := store.NewBleveSparseIndex(filepath.Join(dir, sparseIndexName), store.DefaultSparseConfig())
	if err != nil {
		return nil, err
	}

	chunks, err := store.NewSQLiteChunkStore(filepath.Join(dir, chunkStoreName))
	if err != nil {
		_ = sparse.Close()
		return nil, err
	}

	dims := cfg.Embedder.Dimensions
	vectorPath := filepath.Join(dir, vectorIndexName)
	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(dims))
	if err != nil {
		_ = sparse.Close()
		_ = chunks.Close()
		return nil, err
	}
	if loadVectors {
		if _, statErr := os.Stat(vectorPath); statErr == nil {
			if err := vector.Load(vectorPath); err != nil {
				_ = sparse.Close()
				_ = chunks.Close()
				return nil, fmt.Errorf("load vector index: %w", err)
			}
		}
	}

	b := &backends{
		embedder:   embedder,
		vector:     vector,
		sparse:     sparse,
		chunks:     chunks,
		vectorPath: vectorPath,
	}

	if !cfg.Encoder.Disabled {
		encCfg := encoder.DefaultConfig()
		encCfg.Endpoint = cfg.Encoder.Endpoint
		encCfg.Model = cfg.Encoder.Model
		encCfg.Timeout = time.Duration(cfg.Encoder.TimeoutSecs) * time.Second
		b.encoder = encoder.NewHTTPCrossEncoder(encCfg)
	}

	if cfg.WebSearch.Enabled {
		b.web = websearch.NewDuckDuckGo(cfg.WebSearch.Endpoint)
	}

	switch cfg.Cache.Backend {
	case "redis":
		b.cache = cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.KeyPrefix)
	case "none":
		b.cache = cache.Nop{}
	default:
		b.cache = cache.NewMemory()
	}

	return b, nil
}

// close releases everything in reverse order.
func (b *backends) close() {
	if b.cache != nil {
		_ = b.cache.Close()
	}
	if b.web != nil {
		_ = b.web.Close()
	}
	if b.encoder != nil {
		_ = b.encoder.Close()
	}
	_ = b.vector.Close()
	_ = b.chunks.Close()
	_ = b.sparse.Close()
	_ = b.embedder.Close()
}

// buildPipeline assembles the retrieval pipeline from opened backends.
func buildPipeline(cfg *config.Config, b *backends) (*retrieval.Pipeline, error) {
	return retrieval.New(retrieval.Deps{
		Embedder:  b.embedder,
		Vector:    b.vector,
		Sparse:    b.sparse,
		Chunks:    b.chunks,
		Encoder:   b.encoder,
		WebSearch: b.web,
		Cache:     b.cache,
	}, retrieval.Config{
		Router: retrieval.RouterConfig{
			MinWordsForRetrieval: cfg.Router.MinWordsForRetrieval,
			EnableMultiStep:      cfg.Router.EnableMultiStep,
			EnableGraph:          cfg.Router.EnableGraph,
		},
		Retriever: retrieval.RetrieverConfig{
			KDense:      cfg.Retriever.KDense,
			KSparse:     cfg.Retriever.KSparse,
			RRFConstant: cfg.Retriever.RRFConstant,
		},
		Rerank: retrieval.RerankConfig{
			MinCandidates: cfg.Rerank.MinCandidates,
			MinQueryWords: cfg.Rerank.MinQueryWords,
			BatchSize:     cfg.Rerank.BatchSize,
			MinScore:      cfg.Rerank.MinScore,
			Timeout:       cfg.RerankTimeout(),
			CacheTTL:      time.Duration(cfg.Rerank.CacheTTLSecs) * time.Second,
		},
		Limits: retrieval.LimitsConfig{
			MaxConcurrentEmbeds:        cfg.Limits.MaxConcurrentEmbeds,
			MaxConcurrentSearches:      cfg.Limits.MaxConcurrentSearches,
			MaxConcurrentRerankBatches: cfg.Limits.MaxConcurrentRerankBatches,
		},
		Synonyms:       cfg.Synonyms,
		ResultCacheTTL: time.Duration(cfg.Cache.ResultTTLSecs) * time.Second,
	})
}
