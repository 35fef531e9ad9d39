package retrieval

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limits enforces per-backend concurrency bounds. The embedder, the indices,
// and the cross-encoder are shared by every concurrent request (council mode
// runs many at once); each backend carries its own semaphore.
type Limits struct {
	embeds        *semaphore.Weighted
	searches      *semaphore.Weighted
	rerankBatches *semaphore.Weighted
}

// NewLimits creates the semaphore set from config.
func NewLimits(cfg LimitsConfig) *Limits {
	def := DefaultLimitsConfig()
	if cfg.MaxConcurrentEmbeds <= 0 {
		cfg.MaxConcurrentEmbeds = def.MaxConcurrentEmbeds
	}
	if cfg.MaxConcurrentSearches <= 0 {
		cfg.MaxConcurrentSearches = def.MaxConcurrentSearches
	}
	if cfg.MaxConcurrentRerankBatches <= 0 {
		cfg.MaxConcurrentRerankBatches = def.MaxConcurrentRerankBatches
	}
	return &Limits{
		embeds:        semaphore.NewWeighted(int64(cfg.MaxConcurrentEmbeds)),
		searches:      semaphore.NewWeighted(int64(cfg.MaxConcurrentSearches)),
		rerankBatches: semaphore.NewWeighted(int64(cfg.MaxConcurrentRerankBatches)),
	}
}

// AcquireEmbed blocks until an embedder slot frees or ctx ends.
func (l *Limits) AcquireEmbed(ctx context.Context) (func(), error) {
	if err := l.embeds.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.embeds.Release(1) }, nil
}

// AcquireSearch blocks until an index-search slot frees or ctx ends.
func (l *Limits) AcquireSearch(ctx context.Context) (func(), error) {
	if err := l.searches.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.searches.Release(1) }, nil
}

// AcquireRerankBatch blocks until a cross-encoder batch slot frees or ctx ends.
func (l *Limits) AcquireRerankBatch(ctx context.Context) (func(), error) {
	if err := l.rerankBatches.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.rerankBatches.Release(1) }, nil
}
