package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand_AddsSynonyms(t *testing.T) {
	e := NewExpander()

	expanded := e.Expand("explain async function")
	assert.True(t, strings.HasPrefix(expanded, "explain async function"),
		"original terms must come first")
	assert.Contains(t, expanded, "asynchronous")
	assert.Contains(t, expanded, "concurrent")
	assert.Contains(t, expanded, "non-blocking")
}

func TestExpand_UnknownTermsUnchanged(t *testing.T) {
	e := NewExpander()
	assert.Equal(t, "zyzzyva quokka", e.Expand("zyzzyva quokka"))
}

func TestExpand_Empty(t *testing.T) {
	e := NewExpander()
	assert.Equal(t, "", e.Expand(""))
	assert.Equal(t, "   ", e.Expand("   "))
}

func TestExpand_Deduplicates(t *testing.T) {
	e := NewExpander()
	expanded := e.Expand("async async")
	words := strings.Fields(expanded)
	seen := map[string]bool{}
	for _, w := range words {
		lower := strings.ToLower(w)
		assert.False(t, seen[lower], "duplicate term %q", w)
		seen[lower] = true
	}
}

func TestExpand_MaxExpansionsBounded(t *testing.T) {
	e := NewExpander(WithMaxExpansions(1))
	expanded := e.Expand("async")
	// Original plus at most one synonym.
	assert.Len(t, strings.Fields(expanded), 2)
}

func TestExpand_CustomSynonymsOverride(t *testing.T) {
	e := NewExpander(WithSynonyms(map[string][]string{
		"flux": {"capacitor"},
	}))
	assert.Equal(t, "flux capacitor", e.Expand("flux"))
}

func TestExpand_CaseInsensitiveLookup(t *testing.T) {
	e := NewExpander()
	expanded := e.Expand("Async handling")
	assert.Contains(t, expanded, "asynchronous")
}
