package retrieval

// Pack selects chunks from the ranked list until the token budget is spent,
// preserving the reranker's relevance order.
//
// The walk never reorders: a chunk too large for the remaining budget is
// dropped and the walk continues, so a later, smaller chunk may still land —
// but always behind the more relevant ones already taken. If the first chunk
// alone exceeds the budget the result is empty and the CRAG evaluator treats
// it as Irrelevant.
//
// Postconditions: the summed token counts fit the budget, order is a
// subsequence of the input, and no dropped chunk would have fit the budget
// remaining at the end.
func Pack(ranked []ScoredChunk, budget int) []ScoredChunk {
	if len(ranked) == 0 || budget <= 0 {
		return []ScoredChunk{}
	}
	if ranked[0].Chunk.TokenCount > budget {
		return []ScoredChunk{}
	}

	packed := make([]ScoredChunk, 0, len(ranked))
	remaining := budget
	for _, c := range ranked {
		if c.Chunk.TokenCount > remaining {
			continue
		}
		packed = append(packed, c)
		remaining -= c.Chunk.TokenCount
	}
	return packed
}

// totalTokens sums the token counts of a chunk list.
func totalTokens(chunks []ScoredChunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Chunk.TokenCount
	}
	return total
}
