// Package websearch provides the optional web-search capability used by the
// CRAG fallback when local retrieval comes up irrelevant.
package websearch

import (
	"context"
)

// Result is a single web search hit.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Client searches the web for a query.
type Client interface {
	// Search returns hits for the query, best first.
	Search(ctx context.Context, query string, limit int) ([]Result, error)

	// Close releases resources.
	Close() error
}
