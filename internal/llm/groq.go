package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/resilience"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerName = "Groq"

// ProbePrompt asks the model for a fixed JSON reply
const ProbePrompt = `Reply with exactly this JSON and nothing else: {"status": "working", "message": "Groq is operational!"}`

const (
	probeTemperature = 0.1
	probeMaxTokens   = 100
)

// Config describes the chat-completion endpoint and sampling parameters
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
	Retry       resilience.RetryConfig
}

// GroqClient talks to Groq's OpenAI-compatible chat-completion API
type GroqClient struct {
	sdk    openai.Client
	config Config
	pool   *resilience.ConnectionPool
}

// NewGroqClient creates a client whose requests travel through the pool's breaker.
// The SDK's own retries are disabled in favour of the shared retry policy.
func NewGroqClient(config Config, pool *resilience.ConnectionPool) *GroqClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(pool.Client()),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		base := config.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}

	return &GroqClient{
		sdk:    openai.NewClient(opts...),
		config: config,
		pool:   pool,
	}
}

// Configured reports whether an API key is available
func (g *GroqClient) Configured() bool {
	return strings.TrimSpace(g.config.APIKey) != ""
}

// Model returns the configured model name
func (g *GroqClient) Model() string {
	return g.config.Model
}

// Complete sends prompt as a single user message and returns the first choice's text
func (g *GroqClient) Complete(ctx context.Context, prompt string) (string, error) {
	if !g.Configured() {
		return "", apperrors.NewConfigurationError("GROQ_API_KEY is not set", nil)
	}

	var content string
	err := resilience.RetryWithConfig(ctx, g.config.Retry, func(ctx context.Context) error {
		text, err := g.complete(ctx, prompt, g.config.Temperature, g.config.MaxTokens)
		if err != nil {
			return err
		}
		content = text
		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

func (g *GroqClient) complete(ctx context.Context, prompt string, temperature float64, maxTokens int64) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.config.Model),
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}

	resp, err := g.sdk.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.NewUpstreamError(providerName, errors.New("response contained no choices"))
	}

	return resp.Choices[0].Message.Content, nil
}

// Probe checks the credential and performs one tiny completion, recording each step
func (g *GroqClient) Probe(ctx context.Context) types.ProbeReport {
	report := types.ProbeReport{Model: g.config.Model}
	logf := func(format string, args ...interface{}) {
		report.Logs = append(report.Logs, fmt.Sprintf(format, args...))
	}

	logf("Step 1: Checking for GROQ_API_KEY...")
	if !g.Configured() {
		logf("GROQ_API_KEY is not set")
		report.Message = "GROQ_API_KEY not found"
		report.ErrorDetails = "Set GROQ_API_KEY in the server environment"
		return report
	}
	logf("API key found: %s", MaskKey(g.config.APIKey))

	logf("Step 2: Testing %s API connection with model %s...", providerName, g.config.Model)
	start := time.Now()
	content, err := g.complete(ctx, ProbePrompt, probeTemperature, probeMaxTokens)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			report.StatusCode = apiErr.StatusCode
		}
		logf("Request failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		report.Message = providerName + " API returned an error"
		report.ErrorDetails = err.Error()
		return report
	}

	report.Success = true
	report.StatusCode = 200
	report.APIResponse = content
	report.Message = providerName + " is working"
	logf("%s responded in %s", providerName, time.Since(start).Round(time.Millisecond))
	logf("AI response: %s", content)

	return report
}

// MaskKey keeps a short prefix of a secret for display
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	n := len(key) / 3
	if n > 8 {
		n = 8
	}
	return key[:n] + "..."
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		// keep the SDK error reachable for status reporting
		return apperrors.NewUpstreamError(providerName, &statusError{
			HTTPError: resilience.NewHTTPError(apiErr.StatusCode, fmt.Sprintf("%s API status %d", providerName, apiErr.StatusCode)),
			cause:     apiErr,
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(providerName+" request timed out", err)
	}

	var cbErr *resilience.CircuitBreakerError
	if errors.As(err, &cbErr) {
		return apperrors.NewUpstreamError(providerName, err)
	}

	return apperrors.ToAppError(err)
}

// statusError carries both the retry classification and the original SDK error
type statusError struct {
	*resilience.HTTPError
	cause error
}

func (e *statusError) Unwrap() []error {
	return []error{e.HTTPError, e.cause}
}
