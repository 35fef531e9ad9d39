package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageFormat(t *testing.T) {
	err := InvalidInput("max_candidates must be >= rerank_k")
	assert.Equal(t, "[INVALID_INPUT] max_candidates must be >= rerank_k", err.Error())
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := BackendUnavailable("both searches failed", nil)
	assert.True(t, stderrors.Is(err, &Error{Kind: KindBackendUnavailable}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindCancelled}))
}

func TestError_UnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := BackendUnavailable("embedder down", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestError_WrappedKindOf(t *testing.T) {
	err := fmt.Errorf("stage failed: %w", Deadline(context.DeadlineExceeded))
	assert.Equal(t, KindDeadline, KindOf(err))
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, KindCancelled, FromContext(cancelled).Kind)

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	time.Sleep(time.Millisecond)
	assert.Equal(t, KindDeadline, FromContext(expired).Kind)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(BackendUnavailable("down", nil)))
	assert.False(t, IsRetryable(InvalidInput("bad")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	err := InvalidInput("bad field").WithDetail("field", "token_budget")
	assert.Equal(t, "token_budget", err.Details["field"])
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	attempts := 0
	result, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", stderrors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return stderrors.New("always failing")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestRetry_RespectsCancellation(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func() error { return stderrors.New("failing") })
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}
