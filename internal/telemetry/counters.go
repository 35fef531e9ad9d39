// Package telemetry collects pipeline counters. Counters are atomic so the
// retrieval path never takes a lock to record an event.
package telemetry

import "sync/atomic"

// Counters aggregates retrieval pipeline metrics across requests.
type Counters struct {
	Requests          atomic.Int64 // retrieval requests accepted
	NoRetrieve        atomic.Int64 // requests short-circuited by the router
	CacheHits         atomic.Int64 // retrieval-result cache hits
	CacheMisses       atomic.Int64 // retrieval-result cache misses
	RerankCacheHits   atomic.Int64 // reranker cache hits
	RerankSkipped     atomic.Int64 // reranks skipped (thresholds or failure)
	Degraded          atomic.Int64 // hybrid searches that lost one side
	Corrections       atomic.Int64 // CRAG corrections applied
	WebFallbacks      atomic.Int64 // web-search fallbacks attempted
	CoalescedRequests atomic.Int64 // requests served by single-flight sharing
	DroppedEvents     atomic.Int64 // events dropped by the bounded emitter
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests          int64
	NoRetrieve        int64
	CacheHits         int64
	CacheMisses       int64
	RerankCacheHits   int64
	RerankSkipped     int64
	Degraded          int64
	Corrections       int64
	WebFallbacks      int64
	CoalescedRequests int64
	DroppedEvents     int64
}

// Snapshot returns a consistent-enough copy for reporting.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Requests:          c.Requests.Load(),
		NoRetrieve:        c.NoRetrieve.Load(),
		CacheHits:         c.CacheHits.Load(),
		CacheMisses:       c.CacheMisses.Load(),
		RerankCacheHits:   c.RerankCacheHits.Load(),
		RerankSkipped:     c.RerankSkipped.Load(),
		Degraded:          c.Degraded.Load(),
		Corrections:       c.Corrections.Load(),
		WebFallbacks:      c.WebFallbacks.Load(),
		CoalescedRequests: c.CoalescedRequests.Load(),
		DroppedEvents:     c.DroppedEvents.Load(),
	}
}
