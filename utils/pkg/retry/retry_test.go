package retry

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return http.StatusText(int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestSolarfund_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
}

func TestSolarfund_Retry_Do(t *testing.T) {
	t.Parallel()

	t.Run("success on first attempt", func(t *testing.T) {
		t.Parallel()
		var calls int
		require.NoError(t, Do(context.Background(), fastConfig(), func() error {
			calls++
			return nil
		}))
		assert.Equal(t, 1, calls)
	})

	t.Run("success after retries", func(t *testing.T) {
		t.Parallel()
		var calls int
		var retries []int
		cfg := fastConfig()
		cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }
		require.NoError(t, Do(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		}))
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{2, 3}, retries)
	})

	t.Run("exhausts attempts and wraps last error", func(t *testing.T) {
		t.Parallel()
		orig := statusErr(http.StatusServiceUnavailable)
		var calls int
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			return orig
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, orig)
		assert.Contains(t, err.Error(), "failed after 3 attempts")
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		t.Parallel()
		orig := errors.New("invalid input")
		var calls int
		err := Do(context.Background(), fastConfig(), func() error {
			calls++
			return orig
		})
		assert.Same(t, orig, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Second}
		var calls atomic.Int32
		err := Do(ctx, cfg, func() error {
			calls.Add(1)
			cancel()
			return errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestSolarfund_Retry_DoValue(t *testing.T) {
	t.Parallel()
	var calls int
	v, err := DoValue(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", statusErr(http.StatusTooManyRequests)
		}
		return "02abc", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "02abc", v)
}

func TestSolarfund_Retry_IsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"net timeout", timeoutErr{}, true},
		{"503", statusErr(http.StatusServiceUnavailable), true},
		{"429", statusErr(http.StatusTooManyRequests), true},
		{"400", statusErr(http.StatusBadRequest), false},
		{"500 from remote", statusErr(http.StatusInternalServerError), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"plain", errors.New("bad thing"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSolarfund_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		d := calculateBackoff(100*time.Millisecond, time.Second, 1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
	d := calculateBackoff(100*time.Millisecond, time.Second, 10)
	assert.Less(t, d, time.Second)
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
}
