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

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "text", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "text", got)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("503"), http.StatusServiceUnavailable)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ZeroPolicyMakesOneAttempt(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("429"), http.StatusTooManyRequests)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsTransient(err))
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 5, Backoff: time.Hour, MaxBackoff: time.Hour}
	p.OnRetry = func(int, error) { cancel() }

	_, err := Retry(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, 0, 0)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, time.Second, p.Backoff)
	assert.Equal(t, time.Second, p.MaxBackoff)

	p = NewPolicy(3, 500, 10000)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.Backoff)
	assert.Equal(t, 10*time.Second, p.MaxBackoff)
}

func TestPolicyDelay_Capped(t *testing.T) {
	p := Policy{Backoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 250*time.Millisecond, p.delay(3))
}

func TestHTTPStatusError(t *testing.T) {
	err := HTTPStatusError("dlp", http.StatusServiceUnavailable, []byte("try later"))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "dlp: status 503: try later")

	err = HTTPStatusError("dlp", http.StatusBadRequest, []byte("bad template"))
	assert.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid argument")))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 429)))
}
