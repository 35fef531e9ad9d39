package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteChunkStore persists chunks and index state in SQLite.
type SQLiteChunkStore struct {
	db *sql.DB
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	source_uri  TEXT NOT NULL,
	byte_start  INTEGER NOT NULL,
	byte_end    INTEGER NOT NULL,
	text        TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	embedding   BLOB,
	metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_uri);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteChunkStore opens (or creates) the chunk database at path.
// An empty path opens an in-memory database.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteChunkStore{db: db}, nil
}

// SaveChunks upserts chunks in one transaction.
func (s *SQLiteChunkStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_uri, byte_start, byte_end, text, token_count, language, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_uri=excluded.source_uri, byte_start=excluded.byte_start,
			byte_end=excluded.byte_end, text=excluded.text,
			token_count=excluded.token_count, language=excluded.language,
			embedding=excluded.embedding, metadata=excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.SourceURI, c.ByteStart, c.ByteEnd,
			c.Text, c.TokenCount, c.Language, encodeEmbedding(c.Embedding), string(meta)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk returns one chunk by ID.
func (s *SQLiteChunkStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_uri, byte_start, byte_end, text, token_count, language, embedding, metadata
		FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	return c, err
}

// GetChunks batch-fetches chunks in one query; absent IDs are skipped.
func (s *SQLiteChunkStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, source_uri, byte_start, byte_end, text, token_count, language, embedding, metadata
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("batch get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's ID order.
	result := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// DeleteChunks removes chunks by ID.
func (s *SQLiteChunkStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM chunks WHERE id IN (%s)", placeholders), args...)
	return err
}

// GetState reads a state value; empty string when absent.
func (s *SQLiteChunkStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState writes a state value.
func (s *SQLiteChunkStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// Count returns the number of stored chunks.
func (s *SQLiteChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

var _ ChunkStore = (*SQLiteChunkStore)(nil)

// scanner abstracts *sql.Row and *sql.Rows for scanChunk.
type scanner interface {
	Scan(dest ...any) error
}

func scanChunk(row scanner) (*Chunk, error) {
	var c Chunk
	var embedding []byte
	var metadata string
	if err := row.Scan(&c.ID, &c.SourceURI, &c.ByteStart, &c.ByteEnd,
		&c.Text, &c.TokenCount, &c.Language, &embedding, &metadata); err != nil {
		return nil, err
	}
	c.Embedding = decodeEmbedding(embedding)
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// encodeEmbedding packs a float32 slice as little-endian bytes.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding unpacks little-endian bytes into a float32 slice.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
