// Package embed provides the query/document embedding capability consumed by
// the dense half of the hybrid retriever. Vectors are L2-normalized by the
// vector index before use.
package embed

import (
	"context"
	"time"
)

// Default embedding configuration.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests.
	DefaultTimeout = 60 * time.Second

	// DefaultCacheSize is the default number of cached query embeddings.
	DefaultCacheSize = 1000
)

// Embedder turns text into a fixed-dimension dense vector.
type Embedder interface {
	// Embed returns the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for several texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier (part of cache keys).
	ModelName() string

	// Close releases resources.
	Close() error
}
