// Package config loads the single configuration struct read at construction.
// Unknown fields are rejected so typos fail fast instead of silently running
// with defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/dlorp/synapse/internal/errors"
)

// Config is the full configuration surface of the retrieval core.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Logging   LoggingConfig   `yaml:"logging"`
	Router    RouterConfig    `yaml:"router"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Limits    LimitsConfig    `yaml:"limits"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	WebSearch WebSearchConfig `yaml:"websearch"`
	Synonyms  map[string][]string `yaml:"synonyms"`
}

// IndexConfig locates the offline-built index triple.
type IndexConfig struct {
	// Dir holds the sparse index, vector index, and chunk store.
	Dir string `yaml:"dir"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// RouterConfig mirrors retrieval.RouterConfig.
type RouterConfig struct {
	MinWordsForRetrieval int  `yaml:"min_words_for_retrieval"`
	EnableMultiStep      bool `yaml:"enable_multi_step"`
	EnableGraph          bool `yaml:"enable_graph"`
}

// RetrieverConfig mirrors retrieval.RetrieverConfig.
type RetrieverConfig struct {
	KDense      int `yaml:"k_dense"`
	KSparse     int `yaml:"k_sparse"`
	RRFConstant int `yaml:"rrf_constant"`
}

// RerankConfig mirrors retrieval.RerankConfig.
type RerankConfig struct {
	MinCandidates int     `yaml:"min_candidates"`
	MinQueryWords int     `yaml:"min_query_words"`
	BatchSize     int     `yaml:"batch_size"`
	MinScore      float64 `yaml:"min_score"`
	TimeoutMS     int     `yaml:"timeout_ms"`
	CacheTTLSecs  int     `yaml:"cache_ttl_secs"`
}

// LimitsConfig mirrors retrieval.LimitsConfig.
type LimitsConfig struct {
	MaxConcurrentEmbeds        int `yaml:"max_concurrent_embeds"`
	MaxConcurrentSearches      int `yaml:"max_concurrent_searches"`
	MaxConcurrentRerankBatches int `yaml:"max_concurrent_rerank_batches"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Backend is "memory" (default), "redis", or "none".
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	KeyPrefix     string `yaml:"key_prefix"`
	ResultTTLSecs int    `yaml:"result_ttl_secs"`
}

// EmbedderConfig points at the local embedding server.
type EmbedderConfig struct {
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	CacheSize   int    `yaml:"cache_size"`
}

// EncoderConfig points at the local cross-encoder server.
type EncoderConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// Disabled turns reranking off entirely.
	Disabled bool `yaml:"disabled"`
}

// WebSearchConfig enables the CRAG web fallback.
type WebSearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Environment overrides for endpoints; useful in tests and containers.
const (
	EnvEmbedderHost    = "SYNAPSE_EMBEDDER_HOST"
	EnvEncoderEndpoint = "SYNAPSE_ENCODER_ENDPOINT"
	EnvRedisAddr       = "SYNAPSE_REDIS_ADDR"
)

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		Index:   IndexConfig{Dir: filepath.Join(home, ".synapse", "index")},
		Logging: LoggingConfig{Level: "info"},
		Router:  RouterConfig{MinWordsForRetrieval: 2},
		Retriever: RetrieverConfig{
			KDense:      100,
			KSparse:     100,
			RRFConstant: 60,
		},
		Rerank: RerankConfig{
			MinCandidates: 5,
			MinQueryWords: 5,
			BatchSize:     32,
			MinScore:      0.35,
			TimeoutMS:     500,
			CacheTTLSecs:  3600,
		},
		Limits: LimitsConfig{
			MaxConcurrentEmbeds:        4,
			MaxConcurrentSearches:      8,
			MaxConcurrentRerankBatches: 2,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			KeyPrefix:     "synapse:",
			ResultTTLSecs: 3600,
		},
		Embedder: EmbedderConfig{
			Host:        "http://localhost:11434",
			Model:       "qwen3-embedding:0.6b",
			TimeoutSecs: 60,
			CacheSize:   1000,
		},
		Encoder: EncoderConfig{
			Endpoint:    "http://localhost:9659",
			Model:       "reranker-small",
			TimeoutSecs: 30,
		},
	}
}

// Load reads and validates a YAML config file, applying defaults first.
// An empty path returns the defaults. Unknown fields are an InvalidInput
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse strictly decodes YAML over an existing config.
func Parse(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return serrors.New(serrors.KindInvalidInput,
			fmt.Sprintf("invalid config: %v", err), err)
	}
	return nil
}

// applyEnv overlays environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEmbedderHost); v != "" {
		c.Embedder.Host = v
	}
	if v := os.Getenv(EnvEncoderEndpoint); v != "" {
		c.Encoder.Endpoint = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
	}
}

// Validate rejects values outside their legal ranges.
func (c *Config) Validate() error {
	if c.Rerank.MinScore < 0 || c.Rerank.MinScore > 1 {
		return serrors.InvalidInput(fmt.Sprintf(
			"rerank.min_score (%g) must be in [0,1]", c.Rerank.MinScore))
	}
	if c.Retriever.RRFConstant < 0 {
		return serrors.InvalidInput("retriever.rrf_constant must be >= 0")
	}
	switch c.Cache.Backend {
	case "", "memory", "redis", "none":
	default:
		return serrors.InvalidInput(fmt.Sprintf(
			"cache.backend %q must be memory, redis, or none", c.Cache.Backend))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return serrors.InvalidInput("cache.redis_addr is required for the redis backend")
	}
	return nil
}

// RerankTimeout returns the rerank timeout as a duration.
func (c *Config) RerankTimeout() time.Duration {
	return time.Duration(c.Rerank.TimeoutMS) * time.Millisecond
}
