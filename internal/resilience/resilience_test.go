package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("groq", CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.OnStateChange(func(name string, from, to CircuitBreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "groq", cbErr.Name)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("github", CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.Record(false)
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Record(false)
	assert.Equal(t, StateOpen, cb.State())
}

func TestRetryWithConfig(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithConfig(context.Background(), fast, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return apperrors.NewUpstreamError("Groq", nil)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent failures", func(t *testing.T) {
		calls := 0
		err := RetryWithConfig(context.Background(), fast, func(ctx context.Context) error {
			calls++
			return apperrors.NewParseError("bad", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := RetryWithConfig(context.Background(), fast, func(ctx context.Context) error {
			calls++
			return NewHTTPError(http.StatusServiceUnavailable, "unavailable")
		})
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry an open breaker", func(t *testing.T) {
		calls := 0
		_ = RetryWithConfig(context.Background(), fast, func(ctx context.Context) error {
			calls++
			return &CircuitBreakerError{Name: "groq", State: StateOpen}
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("respects cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryWithConfig(ctx, fast, func(ctx context.Context) error {
			t.Fatal("should not be called")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsRetryableHTTPStatus(code), code)
	}
}

func TestCalculateDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, BackoffFactor: 10}
	assert.Equal(t, time.Second, calculateDelay(cfg, 0))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 3))
}

func TestConnectionPoolGuardsCalls(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var observed []int
	cb := NewCircuitBreaker("github", CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	pool := NewConnectionPool("github", DefaultPoolConfig(), cb,
		func(service, method, endpoint string, status int, d time.Duration, err error) {
			assert.Equal(t, "github", service)
			assert.Error(t, err)
			observed = append(observed, status)
		})
	defer pool.Close()

	for i := 0; i < 2; i++ {
		resp, err := pool.Client().Get(server.URL + "/repos/foo/bar")
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, StateOpen, cb.State())

	_, err := pool.Client().Get(server.URL + "/repos/foo/bar")
	var cbErr *CircuitBreakerError
	assert.ErrorAs(t, err, &cbErr)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, []int{502, 502, 0}, observed)
	assert.Equal(t, "open", pool.GetStats()["circuit_breaker_state"])
}

func TestConnectionPoolIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cb := NewCircuitBreaker("github", CircuitBreakerConfig{FailureThreshold: 1})
	pool := NewConnectionPool("github", DefaultPoolConfig(), cb, nil)

	resp, err := pool.Client().Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, StateClosed, cb.State())
}

func TestDegradationManager(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("groq")

	// below MinRequests a failure does not degrade
	dm.RecordRequest("groq", errors.New("boom"))
	assert.True(t, dm.IsServiceAvailable("groq"))

	for i := 0; i < 4; i++ {
		dm.RecordRequest("groq", errors.New("boom"))
	}
	assert.False(t, dm.IsServiceAvailable("groq"))

	health := dm.GetAllServiceHealth()["groq"]
	assert.Equal(t, LevelEmergency, health.Level)
	assert.Equal(t, "boom", health.LastError)

	dm.ResetService("groq")
	assert.True(t, dm.IsServiceAvailable("groq"))
	assert.False(t, dm.IsServiceAvailable("unknown"))
}

func TestDegradationWindowResets(t *testing.T) {
	now := time.Now()
	dm := NewDegradationManager(DegradationConfig{
		DegradedThreshold: 0.1, CriticalThreshold: 0.25, EmergencyThreshold: 0.5,
		MinRequests: 1, Window: time.Minute,
	})
	dm.now = func() time.Time { return now }
	dm.RegisterService("github")

	dm.RecordRequest("github", errors.New("down"))
	require.False(t, dm.IsServiceAvailable("github"))

	now = now.Add(2 * time.Minute)
	dm.RecordRequest("github", nil)
	assert.True(t, dm.IsServiceAvailable("github"))
	assert.Equal(t, int64(1), dm.GetAllServiceHealth()["github"].TotalRequests)
}
