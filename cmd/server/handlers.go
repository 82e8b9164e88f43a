package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/gin-gonic/gin"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

// handleAnalyze godoc
// @Summary      Analyze a public GitHub repository
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Param        request  body      types.AnalyzeRequest  true  "Repository to analyze"
// @Success      200      {object}  types.AnalysisResult
// @Failure      400      {object}  types.FailurePayload
// @Failure      404      {object}  types.FailurePayload
// @Failure      429      {object}  types.FailurePayload
// @Failure      500      {object}  types.FailurePayload
// @Failure      502      {object}  types.FailurePayload
// @Failure      504      {object}  types.FailurePayload
// @Router       /api/analyze [post]
func (a *application) handleAnalyze(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, bodyError(err))
		return
	}

	requestID := c.GetString("request_id")
	out := a.analyzer.Analyze(c.Request.Context(), requestID, req.RepoURL)
	if !out.OK() {
		apperrors.LogError(c, out.Err)
	}

	c.JSON(out.Status(), out.Body(requestID))
}

func bodyError(err error) *apperrors.AppError {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperrors.NewInvalidInputError("request body is too large")
	case errors.Is(err, io.EOF):
		return apperrors.NewInvalidInputError("repoUrl is required")
	default:
		return apperrors.NewInvalidInputError("request body must be a JSON object", err.Error())
	}
}

// handleProbe godoc
// @Summary      Probe the model provider
// @Tags         diagnostics
// @Produce      json
// @Success      200  {object}  types.ProbeReport
// @Failure      500  {object}  types.ProbeReport
// @Router       /api/test-groq [get]
// @Router       /api/test-groq [post]
func (a *application) handleProbe(c *gin.Context) {
	report := a.groq.Probe(c.Request.Context())

	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
		a.logger.Warn("Model provider probe failed",
			"request_id", c.GetString("request_id"),
			"status_code", report.StatusCode,
			"message", report.Message,
		)
	}

	c.JSON(status, report)
}

// handleHealth godoc
// @Summary      Service and upstream health
// @Tags         operations
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (a *application) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":           "ok",
		"timestamp":        time.Now().Format(time.RFC3339),
		"version":          version,
		"model":            a.groq.Model(),
		"model_configured": a.groq.Configured(),
		"enrichment":       a.config.GitHub.Enrich,
		"redis":            a.redisStatus(c.Request.Context()),
		"services":         a.degradation.GetAllServiceHealth(),
		"circuit_breakers": a.breakers.GetStats(),
	}

	var unavailable []string
	for _, service := range []string{serviceGitHub, serviceGroq} {
		if !a.degradation.IsServiceAvailable(service) {
			unavailable = append(unavailable, service)
		}
	}
	if len(unavailable) > 0 {
		response["status"] = "degraded"
		response["unavailable"] = unavailable
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (a *application) redisStatus(ctx context.Context) string {
	if !a.redis.IsEnabled() {
		return "disabled"
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := a.redis.HealthCheck(ctx); err != nil {
		a.logger.Warn("Redis health check failed", "error", err)
		return "unreachable"
	}
	return "ok"
}

// handleMetrics godoc
// @Summary      Request, upstream and limiter counters
// @Tags         operations
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /metrics [get]
func (a *application) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":          a.metrics.GetStats(),
		"circuit_breakers": a.breakers.GetStats(),
		"pools": gin.H{
			serviceGitHub: a.github.GetPoolStats(),
			serviceGroq:   a.groqPool.GetStats(),
		},
		"rate_limit":  a.limiter.GetStats(),
		"compression": a.compressor.Stats(),
	})
}
