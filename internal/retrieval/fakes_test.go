package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dlorp/synapse/internal/store"
	"github.com/dlorp/synapse/internal/websearch"
)

// fakeEmbedder returns a fixed-dimension vector derived from the text and
// counts invocations for the single-flight law.
type fakeEmbedder struct {
	calls atomic.Int64
	delay time.Duration
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("embedder down")
	}
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r) / 1000
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 4 }
func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }
func (f *fakeEmbedder) Close() error      { return nil }

// fakeVectorIndex returns a scripted ranking and counts searches.
type fakeVectorIndex struct {
	results []*store.VectorResult
	calls   atomic.Int64
	fail    bool
}

func (f *fakeVectorIndex) Add(context.Context, []string, [][]float32) error { return nil }

func (f *fakeVectorIndex) Search(ctx context.Context, _ []float32, k int) ([]*store.VectorResult, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("vector index down")
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeVectorIndex) Delete(context.Context, []string) error { return nil }
func (f *fakeVectorIndex) Count() int                             { return len(f.results) }
func (f *fakeVectorIndex) Save(string) error                      { return nil }
func (f *fakeVectorIndex) Load(string) error                      { return nil }
func (f *fakeVectorIndex) Close() error                           { return nil }

// fakeSparseIndex matches chunks sharing a lowercase word with the query.
type fakeSparseIndex struct {
	chunks []*store.Chunk
	calls  atomic.Int64
	fail   bool
}

func (f *fakeSparseIndex) Index(context.Context, []*store.Chunk) error { return nil }

func (f *fakeSparseIndex) Search(ctx context.Context, query string, k int) ([]*store.SparseResult, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("sparse index down")
	}
	queryWords := strings.Fields(strings.ToLower(query))
	var results []*store.SparseResult
	for _, c := range f.chunks {
		textWords := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(c.Text)) {
			textWords[strings.Trim(w, ".,:;()!?\"'")] = struct{}{}
		}
		matched := 0
		for _, w := range queryWords {
			if _, ok := textWords[w]; ok {
				matched++
			}
		}
		if matched > 0 {
			results = append(results, &store.SparseResult{
				ChunkID: c.ID,
				Score:   float64(matched),
			})
		}
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (f *fakeSparseIndex) Delete(context.Context, []string) error { return nil }
func (f *fakeSparseIndex) Count() int                             { return len(f.chunks) }
func (f *fakeSparseIndex) Close() error                           { return nil }

// fakeChunkStore serves chunks from a map.
type fakeChunkStore struct {
	byID map[string]*store.Chunk
}

func newFakeChunkStore(chunks ...*store.Chunk) *fakeChunkStore {
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return &fakeChunkStore{byID: byID}
}

func (f *fakeChunkStore) SaveChunks(_ context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		f.byID[c.ID] = c
	}
	return nil
}

func (f *fakeChunkStore) GetChunk(_ context.Context, id string) (*store.Chunk, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, errors.New("chunk not found")
	}
	return c, nil
}

func (f *fakeChunkStore) GetChunks(_ context.Context, ids []string) ([]*store.Chunk, error) {
	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) DeleteChunks(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.byID, id)
	}
	return nil
}

func (f *fakeChunkStore) GetState(context.Context, string) (string, error) { return "", nil }
func (f *fakeChunkStore) SetState(context.Context, string, string) error   { return nil }
func (f *fakeChunkStore) Count(context.Context) (int, error)               { return len(f.byID), nil }
func (f *fakeChunkStore) Close() error                                     { return nil }

// fakeEncoder scores passages by scripted substring rules and counts batches.
type fakeEncoder struct {
	// scoreFor maps a substring to the score given to passages containing it.
	scoreFor map[string]float64
	// base is the score for passages matching nothing.
	base    float64
	batches atomic.Int64
	fail    bool
}

func (f *fakeEncoder) ScoreBatch(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.batches.Add(1)
	if f.fail {
		return nil, errors.New("encoder down")
	}
	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = f.base
		for sub, s := range f.scoreFor {
			if strings.Contains(p, sub) && s > scores[i] {
				scores[i] = s
			}
		}
	}
	return scores, nil
}

func (f *fakeEncoder) ModelName() string { return "fake-encoder" }
func (f *fakeEncoder) Close() error      { return nil }

// fakeWebSearch returns scripted hits.
type fakeWebSearch struct {
	hits  []fakeHit
	calls atomic.Int64
	fail  bool
}

type fakeHit struct {
	url, title, snippet string
}

func (f *fakeWebSearch) Search(_ context.Context, _ string, limit int) ([]websearch.Result, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("web search down")
	}
	out := make([]websearch.Result, 0, len(f.hits))
	for _, h := range f.hits {
		out = append(out, websearch.Result{URL: h.url, Title: h.title, Snippet: h.snippet})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeWebSearch) Close() error { return nil }

// testChunk builds a corpus chunk with a deterministic ID.
func testChunk(source, text string, tokens int) *store.Chunk {
	return &store.Chunk{
		ID:         store.ChunkID(source, 0, len(text)),
		SourceURI:  source,
		ByteEnd:    len(text),
		Text:       text,
		TokenCount: tokens,
		Language:   "text",
	}
}
