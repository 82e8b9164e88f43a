package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/repo-analyzer/internal/adapters"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/config"
	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/frontend"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/llm"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/middleware"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/ratelimit"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/resilience"
)

const (
	serviceGitHub = "github"
	serviceGroq   = "groq"
)

// application holds every long-lived collaborator built from the configuration
type application struct {
	config  config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	breakers    *resilience.CircuitBreakerRegistry
	degradation *resilience.DegradationManager
	githubPool  *resilience.ConnectionPool
	groqPool    *resilience.ConnectionPool

	github   *adapters.GitHubAdapter
	groq     *llm.GroqClient
	analyzer *analysis.Analyzer

	redis      *ratelimit.RedisClient
	limiter    *ratelimit.RateLimiter
	compressor *middleware.Compressor
	page       *frontend.Page
}

func newApplication(ctx context.Context, cfg config.Config, logger *monitoring.Logger) (*application, error) {
	app := &application{
		config:      cfg,
		logger:      logger,
		metrics:     monitoring.NewMetrics(),
		breakers:    resilience.NewCircuitBreakerRegistry(),
		degradation: resilience.NewDegradationManager(resilience.DefaultDegradationConfig()),
		compressor:  middleware.NewCompressor(middleware.DefaultCompressionConfig()),
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Upstream.MaxAttempts
	retry.InitialDelay = cfg.Upstream.InitialBackoff

	breakerConfig := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Upstream.FailureThreshold,
		RecoveryTimeout:  cfg.Upstream.RecoveryTimeout,
	}

	app.githubPool = app.newPool(serviceGitHub, breakerConfig, cfg.GitHub.Timeout)
	app.groqPool = app.newPool(serviceGroq, breakerConfig, cfg.LLM.Timeout)

	github, err := adapters.NewGitHubAdapter(adapters.GitHubConfig{
		BaseURL:        cfg.GitHub.BaseURL,
		Token:          cfg.GitHub.Token,
		Timeout:        cfg.GitHub.Timeout,
		ReadmeMaxChars: cfg.GitHub.ReadmeMaxChars,
		CommitLimit:    cfg.GitHub.CommitLimit,
		ContentsLimit:  cfg.GitHub.ContentsLimit,
		Retry:          retry,
	}, app.githubPool)
	if err != nil {
		return nil, fmt.Errorf("github adapter: %w", err)
	}
	app.github = github

	app.groq = llm.NewGroqClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Retry:       retry,
	}, app.groqPool)

	prompt, err := analysis.LoadPrompt(cfg.LLM.PromptPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Prompt template loaded", "source", prompt.Source)

	app.analyzer = analysis.NewAnalyzer(app.github, app.groq, prompt, analysis.Options{
		Enrich: cfg.GitHub.Enrich,
		Cap: analysis.EngagementCap{
			Enabled:          cfg.Analysis.EngagementCap,
			LowStarThreshold: cfg.Analysis.LowStarThreshold,
			MaxScore:         cfg.Analysis.EngagementCapScore,
		},
	}, app.metrics, logger)

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
	if err != nil {
		logger.Warn("Redis unavailable, rate limiting in memory", "error", err)
	}
	app.redis = redisClient
	app.limiter = ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		PerMinute: cfg.RateLimit.PerMinute,
		Burst:     cfg.RateLimit.Burst,
	}, app.metrics)

	dist, err := frontend.GetDistFS()
	if err != nil {
		return nil, fmt.Errorf("frontend assets: %w", err)
	}
	if app.page, err = frontend.NewPage(dist); err != nil {
		return nil, err
	}

	if !cfg.HasModelCredential() {
		logger.Warn("GROQ_API_KEY is not set, analyses will fail until it is configured")
	}

	return app, nil
}

func (a *application) newPool(service string, breakerConfig resilience.CircuitBreakerConfig, timeout time.Duration) *resilience.ConnectionPool {
	breaker := a.breakers.GetOrCreate(service, breakerConfig)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitBreakerState) {
		a.logger.Warn("Circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
		switch to {
		case resilience.StateOpen:
			a.metrics.RecordCircuitTransition(true)
		case resilience.StateClosed:
			a.metrics.RecordCircuitTransition(false)
			// a recovered upstream starts a fresh error window
			a.degradation.ResetService(name)
		}
	})

	a.degradation.RegisterService(service)

	poolConfig := resilience.DefaultPoolConfig()
	poolConfig.ResponseHeaders = timeout
	return resilience.NewConnectionPool(service, poolConfig, breaker, a.observeCall)
}

// observeCall feeds every upstream round trip into metrics, health and the call log
func (a *application) observeCall(service, method, endpoint string, statusCode int, duration time.Duration, err error) {
	success := err == nil
	a.metrics.RecordExternalAPIRequest(service, success, duration)
	a.degradation.RecordRequest(service, err)
	a.logger.ExternalAPILogger(service, method, endpoint, statusCode, duration, success)
}

// Close releases pooled connections, the limiter and Redis
func (a *application) Close() {
	a.limiter.Close()
	apperrors.SafeClose(a.redis, "redis")
	apperrors.SafeClose(a.github, "github pool")
	apperrors.SafeClose(a.groqPool, "groq pool")
}
