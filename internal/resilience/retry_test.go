package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:      attempts,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		RateLimitBackoff: time.Millisecond,
	}
}

func TestDoVal_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("boom"), http.StatusBadGateway)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoVal_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad credentials")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 0, NewSchemaError(errors.New("missing field"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsSchema(err))
}

func TestDoVal_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(10), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("boom"), http.StatusServiceUnavailable)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_OnRetryCallback(t *testing.T) {
	cfg := fastRetry(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		return 0, NewTransientError(errors.New("boom"), http.StatusBadGateway)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDelay_HonorsRetryAfterHint(t *testing.T) {
	cfg := DefaultRetryConfig()
	err := NewRateLimitError(errors.New("slow down"), 7*time.Second)
	assert.Equal(t, 7*time.Second, cfg.delay(0, err))
}

func TestDelay_RateLimitFloorWithoutHint(t *testing.T) {
	cfg := DefaultRetryConfig().withDefaults()
	err := NewRateLimitError(errors.New("slow down"), 0)
	assert.GreaterOrEqual(t, cfg.delay(0, err), cfg.RateLimitBackoff*3/4)
}

func TestDelay_CapsAtMaxBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
		JitterFraction: -1, // disable jitter for determinism
	}.withDefaults()
	plain := errors.New("boom")
	assert.LessOrEqual(t, cfg.delay(5, plain), cfg.MaxBackoff)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewTransientError(errors.New("x"), http.StatusBadGateway)))
	assert.True(t, Retryable(NewSchemaError(errors.New("x"))))
	assert.True(t, Retryable(NewRateLimitError(errors.New("x"), time.Second)))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	assert.True(t, IsTransientHTTPStatus(http.StatusTooManyRequests))
	assert.True(t, IsTransientHTTPStatus(http.StatusBadGateway))
	assert.True(t, IsTransientHTTPStatus(http.StatusRequestTimeout))
	assert.False(t, IsTransientHTTPStatus(http.StatusBadRequest))
	assert.False(t, IsTransientHTTPStatus(http.StatusUnauthorized))
}

func TestRateLimitDetection(t *testing.T) {
	err := NewRateLimitError(errors.New("429"), 3*time.Second)
	assert.True(t, IsRateLimit(err))
	hint, ok := RetryAfterHint(err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, hint)
	assert.False(t, IsRateLimit(errors.New("plain")))
}
