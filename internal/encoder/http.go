package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	serrors "github.com/dlorp/synapse/internal/errors"
)

// HTTP cross-encoder defaults.
const (
	// DefaultEndpoint is the local reranker server URL.
	DefaultEndpoint = "http://localhost:9659"

	// DefaultModel is the reranker model alias.
	DefaultModel = "reranker-small"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the HTTP cross-encoder.
type Config struct {
	// Endpoint is the reranker server URL (default: http://localhost:9659).
	Endpoint string

	// Model is the reranker model alias.
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// Instruction is an optional scoring instruction passed to the server.
	Instruction string
}

// DefaultConfig returns default cross-encoder configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Timeout:  DefaultTimeout,
	}
}

// HTTPCrossEncoder scores pairs through a local reranker HTTP server.
// A circuit breaker fails fast once the server has proven unreachable, so
// the reranker can fall back to pass-through without waiting out timeouts.
type HTTPCrossEncoder struct {
	client  *http.Client
	config  Config
	breaker *serrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// scoreRequest is the JSON request to the /rerank endpoint.
type scoreRequest struct {
	Query       string   `json:"query"`
	Documents   []string `json:"documents"`
	Model       string   `json:"model,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
}

// scoreResponse is the JSON response from the /rerank endpoint.
type scoreResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// NewHTTPCrossEncoder creates a cross-encoder client.
func NewHTTPCrossEncoder(cfg Config) *HTTPCrossEncoder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &HTTPCrossEncoder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
		breaker: serrors.NewCircuitBreaker("cross-encoder",
			serrors.WithMaxFailures(3),
			serrors.WithResetTimeout(15*time.Second)),
	}
}

// ScoreBatch scores each passage against the query.
func (e *HTTPCrossEncoder) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("cross-encoder is closed")
	}
	e.mu.RUnlock()

	if len(passages) == 0 {
		return []float64{}, nil
	}
	if !e.breaker.Allow() {
		return nil, serrors.ErrCircuitOpen
	}

	scores, err := e.scoreOnce(ctx, query, passages)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, err
	}
	e.breaker.RecordSuccess()
	return scores, nil
}

// scoreOnce performs one /rerank round trip.
func (e *HTTPCrossEncoder) scoreOnce(ctx context.Context, query string, passages []string) ([]float64, error) {
	reqBody := scoreRequest{
		Query:       query,
		Documents:   passages,
		Model:       e.config.Model,
		Instruction: e.config.Instruction,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/rerank", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("score failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}

	// The server returns results sorted by score; restore input order.
	scores := make([]float64, len(passages))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("score response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}

// ModelName returns the model identifier.
func (e *HTTPCrossEncoder) ModelName() string {
	return e.config.Model
}

// Close releases resources.
func (e *HTTPCrossEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if transport, ok := e.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)
