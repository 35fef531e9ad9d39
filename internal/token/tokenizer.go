// Package token provides token counting shared by the offline indexer, the
// budget packer, and the web-fallback chunk conversion. One tokenizer is used
// everywhere so TokenCount values are comparable across chunk origins.
package token

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in a piece of text.
type Counter interface {
	// Count returns the number of tokens in text under this tokenizer.
	Count(text string) int
}

// TiktokenCounter counts tokens using a tiktoken BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding or model name.
func NewTiktokenCounter(name string) (*TiktokenCounter, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// Accept model names ("gpt-4o") as well as encoding names.
		enc, err = tiktoken.EncodingForModel(name)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

var _ Counter = (*TiktokenCounter)(nil)

// ApproxCounter estimates token counts from whitespace-separated words.
// Used when the tiktoken vocabulary cannot be loaded (offline environments);
// the budget packer only needs counts that are consistent, not exact.
type ApproxCounter struct{}

// Count approximates the token count as words plus standalone punctuation.
func (ApproxCounter) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				n++
				inWord = true
			}
		default:
			n++
			inWord = false
		}
	}
	return n
}

var _ Counter = ApproxCounter{}

var (
	defaultOnce    sync.Once
	defaultCounter Counter
)

// Default returns the process-wide counter: tiktoken when its vocabulary is
// available, the word approximation otherwise.
func Default() Counter {
	defaultOnce.Do(func() {
		if tc, err := NewTiktokenCounter(DefaultEncoding); err == nil {
			defaultCounter = tc
		} else {
			defaultCounter = ApproxCounter{}
		}
	})
	return defaultCounter
}

// Keywords lowercases text and splits it into alphanumeric tokens with
// stopwords removed. Shared by the CRAG keyword-overlap signal and the
// query expander.
func Keywords(text string, stopwords map[string]struct{}) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
