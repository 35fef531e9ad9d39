package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/dlorp/synapse/internal/embed"
	"github.com/dlorp/synapse/internal/store"
)

// embedBatchSize is how many chunk texts go into one embedder call.
const embedBatchSize = 32

// indexableExtensions are the file types the corpus walk picks up.
var indexableExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".rs": {}, ".js": {}, ".jsx": {}, ".ts": {},
	".tsx": {}, ".java": {}, ".c": {}, ".h": {}, ".cpp": {}, ".cc": {},
	".hpp": {}, ".md": {}, ".markdown": {}, ".txt": {}, ".yaml": {},
	".yml": {}, ".json": {}, ".sh": {}, ".bash": {},
}

// Indexer walks a corpus directory and writes the index triple.
type Indexer struct {
	embedder embed.Embedder
	vector   store.VectorIndex
	sparse   store.SparseIndex
	chunks   store.ChunkStore
	chunker  *Chunker
	lock     *flock.Flock
}

// New creates an indexer over the given backends. lockPath guards the index
// directory against concurrent builds.
func New(
	embedder embed.Embedder,
	vector store.VectorIndex,
	sparse store.SparseIndex,
	chunks store.ChunkStore,
	chunker *Chunker,
	lockPath string,
) *Indexer {
	return &Indexer{
		embedder: embedder,
		vector:   vector,
		sparse:   sparse,
		chunks:   chunks,
		chunker:  chunker,
		lock:     flock.New(lockPath),
	}
}

// BuildStats summarizes one indexing run.
type BuildStats struct {
	Files  int
	Chunks int
}

// Build indexes every eligible file under root. Holds the build lock for the
// whole run; a second concurrent build fails fast instead of corrupting the
// triple.
func (ix *Indexer) Build(ctx context.Context, root string) (BuildStats, error) {
	var stats BuildStats

	locked, err := ix.lock.TryLock()
	if err != nil {
		return stats, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return stats, fmt.Errorf("index is locked by another build")
	}
	defer func() { _ = ix.lock.Unlock() }()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := indexableExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := ix.IndexFile(ctx, root, path)
		if err != nil {
			slog.Warn("index_file_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil // keep walking
		}
		if n > 0 {
			stats.Files++
			stats.Chunks += n
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := ix.recordEmbeddingInfo(ctx); err != nil {
		slog.Warn("record_embedding_info_failed", slog.String("error", err.Error()))
	}
	return stats, nil
}

// IndexFile chunks, embeds, and indexes a single file. Returns the number of
// chunks written.
func (ix *Indexer) IndexFile(ctx context.Context, root, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	chunks := ix.chunker.Chunk(filepath.ToSlash(rel), string(content))
	if len(chunks) == 0 {
		return 0, nil
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch: %w", err)
		}
		for i, c := range batch {
			c.Embedding = embeddings[i]
		}
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		vectors[i] = c.Embedding
	}

	if err := ix.chunks.SaveChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("save chunks: %w", err)
	}
	if err := ix.sparse.Index(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index sparse: %w", err)
	}
	if err := ix.vector.Add(ctx, ids, vectors); err != nil {
		return 0, fmt.Errorf("index vectors: %w", err)
	}
	return len(chunks), nil
}

// recordEmbeddingInfo stores dimension and model for mismatch detection.
func (ix *Indexer) recordEmbeddingInfo(ctx context.Context) error {
	if err := ix.chunks.SetState(ctx, store.StateKeyIndexDimension,
		fmt.Sprintf("%d", ix.embedder.Dimensions())); err != nil {
		return err
	}
	return ix.chunks.SetState(ctx, store.StateKeyIndexModel, ix.embedder.ModelName())
}
