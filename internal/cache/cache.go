// Package cache provides the TTL'd byte cache consumed by the reranker and
// the retrieval-result cache. The core tolerates a cache that silently fails:
// errors are logged by callers and never propagate into the pipeline.
package cache

import (
	"context"
	"time"
)

// Cache is a get/set byte store with per-entry TTL.
//
// Absence means "unknown", never "no results": callers must not cache
// negative results under the same key as positive ones.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. Writes are last-writer-wins.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases resources.
	Close() error
}

// Nop is a cache that stores nothing. Used when caching is disabled.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

var _ Cache = Nop{}
