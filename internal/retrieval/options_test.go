package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	serrors "github.com/dlorp/synapse/internal/errors"
)

func TestOptions_Defaults(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 8192, opts.TokenBudget)
	assert.Equal(t, 100, opts.MaxCandidates)
	assert.Equal(t, 50, opts.RerankK)
	assert.Equal(t, 0.35, opts.MinRelevance)
	assert.True(t, opts.UseCache)
}

func TestOptions_ApplyDefaultsPreservesBudget(t *testing.T) {
	opts := Options{TokenBudget: 0}.applyDefaults()
	assert.Zero(t, opts.TokenBudget, "a zero budget is meaningful, not unset")
	assert.Equal(t, DefaultMaxCandidates, opts.MaxCandidates)
}

func TestOptions_RerankKClampedToCandidates(t *testing.T) {
	opts := Options{MaxCandidates: 20}.applyDefaults()
	assert.Equal(t, 20, opts.RerankK)
}

func TestOptions_Validate(t *testing.T) {
	bad := Options{MaxCandidates: 10, RerankK: 50}
	err := bad.validate()
	assert.Equal(t, serrors.KindInvalidInput, serrors.KindOf(err))

	badRelevance := DefaultOptions()
	badRelevance.MinRelevance = 1.5
	assert.Error(t, badRelevance.validate())

	badStrategy := DefaultOptions()
	badStrategy.ForceStrategy = Strategy("bogus")
	assert.Error(t, badStrategy.validate())

	assert.NoError(t, DefaultOptions().validate())
}

func TestFingerprint_StableAndParamSensitive(t *testing.T) {
	opts := DefaultOptions()

	a := retrievalFingerprint("How does  RRF work", opts)
	b := retrievalFingerprint("how does rrf work", opts)
	assert.Equal(t, a, b, "whitespace and case normalize away")

	opts.TokenBudget = 1024
	c := retrievalFingerprint("how does rrf work", opts)
	assert.NotEqual(t, a, c, "parameters are part of the fingerprint")
}

func TestRerankCacheKey_OrderInsensitive(t *testing.T) {
	a := rerankCacheKey("q", []string{"c1", "c2", "c3"}, "m")
	b := rerankCacheKey("q", []string{"c3", "c1", "c2"}, "m")
	assert.Equal(t, a, b)

	c := rerankCacheKey("q", []string{"c1", "c2"}, "m")
	assert.NotEqual(t, a, c)

	d := rerankCacheKey("q", []string{"c1", "c2", "c3"}, "other-model")
	assert.NotEqual(t, a, d)
}
