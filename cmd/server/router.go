package main

import (
	"net/http"
	"strings"
	"time"

	_ "github.com/ZanzyTHEbar/repo-analyzer/docs"
	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/security"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func newRouter(app *application) *gin.Engine {
	cfg := app.config

	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		app.logger.Warn("Invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	secConfig := security.DefaultSecurityConfig()
	if cfg.Server.MaxBodyBytes > 0 {
		secConfig.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	if cfg.Server.RequestTimeout > 0 {
		secConfig.RequestTimeout = cfg.Server.RequestTimeout
	}
	secConfig.EnableHSTS = cfg.Server.EnableHSTS
	sec := security.NewSecurityMiddleware(secConfig)

	r.Use(monitoring.RequestID())
	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger, cfg.Server.MaxBodyBytes))
	r.Use(app.compressor.Handler())
	r.Use(sec.SecurityHeaders)
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	}
	r.Use(apperrors.ErrorHandler())

	r.NoMethod(handleMethodNotAllowed)
	r.NoRoute(handleNotFound)

	api := r.Group("/api",
		sec.RequestTimeout,
		sec.LimitBody,
		sec.ValidateContentType,
		app.limiter.IPRateLimitMiddleware(),
	)
	api.POST("/analyze", app.handleAnalyze)
	api.GET("/test-groq", app.handleProbe)
	api.POST("/test-groq", app.handleProbe)

	r.GET("/health", app.handleHealth)
	r.GET("/metrics", app.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	app.page.Register(r)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", monitoring.RequestIDHeader},
		ExposeHeaders:    []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func handleMethodNotAllowed(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.Header("Allow", allowedMethods(c.Request.URL.Path))
	}
	apperrors.Respond(c, apperrors.NewMethodNotAllowedError(c.Request.Method))
}

func allowedMethods(path string) string {
	if path == "/api/test-groq" {
		return "GET, POST"
	}
	return http.MethodPost
}

func handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":      "not found",
		"path":       c.Request.URL.Path,
		"request_id": c.GetString("request_id"),
	})
}
