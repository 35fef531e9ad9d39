package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/dlorp/synapse/internal/errors"
)

func TestDefault_Values(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2, cfg.Router.MinWordsForRetrieval)
	assert.Equal(t, 60, cfg.Retriever.RRFConstant)
	assert.Equal(t, 0.35, cfg.Rerank.MinScore)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 4, cfg.Limits.MaxConcurrentEmbeds)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Retriever, cfg.Retriever)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
router:
  min_words_for_retrieval: 3
  enable_multi_step: true
retriever:
  rrf_constant: 90
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Router.MinWordsForRetrieval)
	assert.True(t, cfg.Router.EnableMultiStep)
	assert.Equal(t, 90, cfg.Retriever.RRFConstant)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.35, cfg.Rerank.MinScore)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("retreiver:\n  rrf_constant: 90\n"), cfg)
	require.Error(t, err)
	assert.Equal(t, serrors.KindInvalidInput, serrors.KindOf(err))
}

func TestParse_UnknownNestedFieldRejected(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("rerank:\n  minimum_score: 0.5\n"), cfg)
	require.Error(t, err)
	assert.Equal(t, serrors.KindInvalidInput, serrors.KindOf(err))
}

func TestValidate_Ranges(t *testing.T) {
	cfg := Default()
	cfg.Rerank.MinScore = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Backend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Backend = "redis"
	assert.Error(t, cfg.Validate(), "redis requires an address")
	cfg.Cache.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvEmbedderHost, "http://embed.test:1234")
	t.Setenv(EnvEncoderEndpoint, "http://encode.test:5678")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://embed.test:1234", cfg.Embedder.Host)
	assert.Equal(t, "http://encode.test:5678", cfg.Encoder.Endpoint)
}

func TestLoad_Synonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
synonyms:
  async: [asynchronous, concurrent]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"asynchronous", "concurrent"}, cfg.Synonyms["async"])
}
