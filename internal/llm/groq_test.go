package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama-3.1-8b-instant",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			},
		},
	}
}

func newTestClient(t *testing.T, apiKey string, handler http.HandlerFunc) *GroqClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cb := resilience.NewCircuitBreaker("groq", resilience.CircuitBreakerConfig{FailureThreshold: 10})
	pool := resilience.NewConnectionPool("groq", resilience.DefaultPoolConfig(), cb, nil)

	return NewGroqClient(Config{
		APIKey:      apiKey,
		BaseURL:     server.URL,
		Model:       "llama-3.1-8b-instant",
		Temperature: 0.3,
		MaxTokens:   512,
		Timeout:     2 * time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			BackoffFactor: 2,
		},
	}, pool)
}

func TestComplete(t *testing.T) {
	var got chatRequest
	var auth string
	client := newTestClient(t, "gsk_test_key", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"score":72}`))
	})

	text, err := client.Complete(context.Background(), "rate this repository")
	require.NoError(t, err)

	assert.Equal(t, `{"score":72}`, text)
	assert.Equal(t, "Bearer gsk_test_key", auth)
	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, int64(512), got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "rate this repository", got.Messages[0].Content)
}

func TestCompleteWithoutKey(t *testing.T) {
	var calls int32
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryConfiguration, apperrors.ToAppError(err).Category)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category apperrors.ErrorCategory
		calls    int32
	}{
		{"server error retried", http.StatusServiceUnavailable, `{"error":{"message":"over capacity"}}`, apperrors.CategoryUpstreamUnavailable, 2},
		{"rate limited retried", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, apperrors.CategoryUpstreamUnavailable, 2},
		{"bad key not retried", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, apperrors.CategoryUpstreamUnavailable, 1},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`, apperrors.CategoryUpstreamUnavailable, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, "gsk_test_key", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.category, apperrors.ToAppError(err).Category)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestProbe(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		})

		report := client.Probe(context.Background())
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
		assert.False(t, report.Success)
		assert.Equal(t, "GROQ_API_KEY not found", report.Message)
		assert.NotEmpty(t, report.Logs)
	})

	t.Run("healthy provider", func(t *testing.T) {
		var got chatRequest
		client := newTestClient(t, "gsk_abcdefghijklmnopqrstuvwxyz", func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completion(`{"status": "working", "message": "Groq is operational!"}`))
		})

		report := client.Probe(context.Background())
		require.True(t, report.Success)
		assert.Equal(t, 200, report.StatusCode)
		assert.Contains(t, report.APIResponse, "operational")
		assert.Equal(t, ProbePrompt, got.Messages[0].Content)
		assert.Equal(t, 0.1, got.Temperature)
		assert.Equal(t, int64(100), got.MaxTokens)

		for _, line := range report.Logs {
			assert.NotContains(t, line, "gsk_abcdefghijklmnopqrstuvwxyz")
		}
	})

	t.Run("provider error", func(t *testing.T) {
		client := newTestClient(t, "gsk_test_key", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
		})

		report := client.Probe(context.Background())
		assert.False(t, report.Success)
		assert.Equal(t, http.StatusUnauthorized, report.StatusCode)
		assert.NotEmpty(t, report.ErrorDetails)
	})
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "gsk_abcd...", MaskKey("gsk_abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "ab...", MaskKey("abcdef"))
	assert.Equal(t, "...", MaskKey("ab"))
}
