package retrieval

import (
	"sort"

	"github.com/dlorp/synapse/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically robust across domains and needs no score calibration between
// the two asymmetric rankers.
const DefaultRRFConstant = 60

// fusedEntry is a single candidate after RRF fusion, before enrichment.
type fusedEntry struct {
	ChunkID     string
	RRFScore    float64
	DenseRank   int // 1-indexed, 0 if absent
	SparseRank  int // 1-indexed, 0 if absent
	DenseScore  float64
	SparseScore float64
	InBothLists bool
}

// rrfFusion combines dense and sparse rankings by Reciprocal Rank Fusion.
type rrfFusion struct {
	k int
}

// newRRFFusion creates a fusion with the given smoothing constant.
func newRRFFusion(k int) *rrfFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &rrfFusion{k: k}
}

// Fuse merges the two rankings. Each chunk scores the sum of 1/(k+rank) over
// the lists it appears in; a missing list contributes nothing. Duplicate IDs
// within a list keep their best (first) rank.
//
// Ties resolve by: appeared in both lists first, then better dense rank,
// then lexicographic chunk ID.
func (f *rrfFusion) Fuse(dense []*store.VectorResult, sparse []*store.SparseResult) []*fusedEntry {
	if len(dense) == 0 && len(sparse) == 0 {
		return []*fusedEntry{}
	}

	entries := make(map[string]*fusedEntry, len(dense)+len(sparse))

	for i, r := range dense {
		e, ok := entries[r.ChunkID]
		if !ok {
			e = &fusedEntry{ChunkID: r.ChunkID}
			entries[r.ChunkID] = e
		}
		if e.DenseRank != 0 {
			continue // keep best rank on duplicate IDs
		}
		e.DenseRank = i + 1
		e.DenseScore = float64(r.Score)
		e.RRFScore += 1.0 / float64(f.k+i+1)
	}

	for i, r := range sparse {
		e, ok := entries[r.ChunkID]
		if !ok {
			e = &fusedEntry{ChunkID: r.ChunkID}
			entries[r.ChunkID] = e
		}
		if e.SparseRank != 0 {
			continue
		}
		e.SparseRank = i + 1
		e.SparseScore = r.Score
		e.RRFScore += 1.0 / float64(f.k+i+1)
		if e.DenseRank > 0 {
			e.InBothLists = true
		}
	}

	results := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		results = append(results, e)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.less(results[i], results[j])
	})
	return results
}

// less reports whether a should rank before b.
func (f *rrfFusion) less(a, b *fusedEntry) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.DenseRank != b.DenseRank {
		// A present dense rank beats an absent one; otherwise lower is better.
		if a.DenseRank == 0 {
			return false
		}
		if b.DenseRank == 0 {
			return true
		}
		return a.DenseRank < b.DenseRank
	}
	return a.ChunkID < b.ChunkID
}
