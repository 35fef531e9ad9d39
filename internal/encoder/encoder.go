// Package encoder provides the cross-encoder scoring capability consumed by
// the reranker. A cross-encoder jointly attends over (query, passage) pairs
// and is reached over HTTP on a local inference server.
package encoder

import (
	"context"
)

// CrossEncoder scores (query, passage) pairs for relevance.
type CrossEncoder interface {
	// ScoreBatch scores each passage against the query, returning one score
	// per passage in input order. The encoder may parallelize internally;
	// callers submit batches serially.
	ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error)

	// ModelName returns the model identifier (part of reranker cache keys).
	ModelName() string

	// Close releases resources.
	Close() error
}
