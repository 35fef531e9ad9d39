// Package indexer builds the offline index triple (sparse, vector, chunk
// store) from a corpus directory. Query serving treats the result as a
// read-mostly asset; the indexer is the only writer and guards the index
// directory with a file lock.
package indexer

import (
	"path/filepath"
	"strings"

	"github.com/dlorp/synapse/internal/store"
	"github.com/dlorp/synapse/internal/token"
)

// Chunking defaults.
const (
	// DefaultMaxChunkTokens bounds one chunk's token count.
	DefaultMaxChunkTokens = 400

	// DefaultMinChunkTokens merges trailing fragments below this size into
	// the previous chunk.
	DefaultMinChunkTokens = 16
)

// Chunker splits document text into token-bounded chunks along paragraph
// boundaries, tracking byte ranges for stable chunk IDs.
type Chunker struct {
	maxTokens int
	minTokens int
	tokens    token.Counter
}

// NewChunker creates a chunker using the shared tokenizer.
func NewChunker(maxTokens int, tokens token.Counter) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if tokens == nil {
		tokens = token.Default()
	}
	return &Chunker{
		maxTokens: maxTokens,
		minTokens: DefaultMinChunkTokens,
		tokens:    tokens,
	}
}

// Chunk splits content into chunks for sourceURI. Paragraphs (blank-line
// separated) are greedily packed until the token bound; a paragraph larger
// than the bound becomes its own chunk rather than being split mid-thought.
func (c *Chunker) Chunk(sourceURI, content string) []*store.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	paragraphs := splitParagraphs(content)
	language := detectLanguage(sourceURI)

	var chunks []*store.Chunk
	var buf strings.Builder
	bufStart := 0
	bufTokens := 0

	flush := func(end int) {
		text := buf.String()
		if strings.TrimSpace(text) == "" {
			buf.Reset()
			bufTokens = 0
			return
		}
		count := bufTokens
		if count < 1 {
			count = 1
		}
		chunks = append(chunks, &store.Chunk{
			ID:         store.ChunkID(sourceURI, bufStart, end),
			SourceURI:  sourceURI,
			ByteStart:  bufStart,
			ByteEnd:    end,
			Text:       text,
			TokenCount: count,
			Language:   language,
		})
		buf.Reset()
		bufTokens = 0
	}

	for _, p := range paragraphs {
		pTokens := c.tokens.Count(p.text)

		if buf.Len() > 0 && bufTokens+pTokens > c.maxTokens {
			flush(p.start)
			bufStart = p.start
		}
		if buf.Len() == 0 {
			bufStart = p.start
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p.text)
		bufTokens += pTokens
	}
	flush(len(content))

	// Fold a trailing fragment into its predecessor.
	if n := len(chunks); n >= 2 && chunks[n-1].TokenCount < c.minTokens {
		last, prev := chunks[n-1], chunks[n-2]
		merged := &store.Chunk{
			SourceURI:  sourceURI,
			ByteStart:  prev.ByteStart,
			ByteEnd:    last.ByteEnd,
			Text:       prev.Text + "\n\n" + last.Text,
			TokenCount: prev.TokenCount + last.TokenCount,
			Language:   language,
		}
		merged.ID = store.ChunkID(sourceURI, merged.ByteStart, merged.ByteEnd)
		chunks = append(chunks[:n-2], merged)
	}

	return chunks
}

// paragraph is a blank-line separated block with its byte offset.
type paragraph struct {
	text  string
	start int
}

// splitParagraphs splits on runs of blank lines, keeping byte offsets.
func splitParagraphs(content string) []paragraph {
	var paragraphs []paragraph
	offset := 0
	for _, block := range strings.Split(content, "\n\n") {
		trimmed := strings.TrimRight(block, "\n")
		if strings.TrimSpace(trimmed) != "" {
			paragraphs = append(paragraphs, paragraph{text: trimmed, start: offset})
		}
		offset += len(block) + 2
	}
	return paragraphs
}

// detectLanguage maps a file extension onto a language label.
func detectLanguage(sourceURI string) string {
	switch strings.ToLower(filepath.Ext(sourceURI)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".md", ".markdown":
		return "markdown"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".sh", ".bash":
		return "shell"
	case ".txt", "":
		return "text"
	default:
		return "text"
	}
}
