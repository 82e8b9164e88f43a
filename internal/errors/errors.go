package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryInvalidInput        ErrorCategory = "invalid_input"
	CategoryMethodNotAllowed    ErrorCategory = "method_not_allowed"
	CategoryUnsupportedMedia    ErrorCategory = "unsupported_media_type"
	CategoryConfiguration       ErrorCategory = "configuration"
	CategoryUpstreamUnavailable ErrorCategory = "upstream_unavailable"
	CategoryRepositoryNotFound  ErrorCategory = "repository_not_found"
	CategoryParse               ErrorCategory = "parse"
	CategoryTimeout             ErrorCategory = "timeout"
	CategoryRateLimit           ErrorCategory = "rate_limit"
	CategoryInternal            ErrorCategory = "internal"
)

// AppError wraps an errbuilder error with the category and status used by the responder
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Category)), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Message returns the human readable message without the category prefix
func (e *AppError) Message() string {
	return e.ErrBuilder.Msg
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withDetails(builder *errbuilder.ErrBuilder, details map[string]string) *errbuilder.ErrBuilder {
	if len(details) == 0 {
		return builder
	}
	errorMap := errbuilder.ErrorMap{}
	for key, value := range details {
		errorMap.Set(key, errors.New(value))
	}
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

// NewInvalidInputError creates a client input error
func NewInvalidInputError(message string, details ...string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 && details[0] != "" {
		builder = withDetails(builder, map[string]string{"validation_details": details[0]})
	}

	return NewAppError(builder, CategoryInvalidInput, http.StatusBadRequest)
}

// NewMethodNotAllowedError rejects a request method
func NewMethodNotAllowedError(method string) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("Method %s not allowed", method)),
		map[string]string{"allowed": http.MethodPost})

	return NewAppError(builder, CategoryMethodNotAllowed, http.StatusMethodNotAllowed)
}

// NewUnsupportedMediaTypeError rejects a request content type
func NewUnsupportedMediaTypeError(contentType string) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Unsupported content type"),
		map[string]string{"content_type": contentType})

	return NewAppError(builder, CategoryUnsupportedMedia, http.StatusUnsupportedMediaType)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message),
		map[string]string{"config_details": message})

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

// NewUpstreamError creates an error for a failed call to an external API
func NewUpstreamError(apiName string, cause error) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API unavailable", apiName)),
		map[string]string{"api_name": apiName})

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryUpstreamUnavailable, http.StatusBadGateway)
}

// NewRepositoryNotFoundError reports a repository GitHub refused to describe
func NewRepositoryNotFoundError(fullName string, cause error) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("Repository not found or private"),
		map[string]string{"repository": fullName})

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryRepositoryNotFound, http.StatusNotFound)
}

// NewParseError reports a model reply that is not well-shaped JSON
func NewParseError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryParse, http.StatusBadGateway)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter time.Duration) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded"),
		map[string]string{"retry_after": retryAfter.String()})

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	builder := withDetails(errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error"),
		map[string]string{"internal_details": message})

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// captureStackTrace captures a stack trace for debugging
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeoutError("Upstream request timed out", err)
		}
		return NewUpstreamError("Network", err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewUpstreamError("Network", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and request context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	)

	msg := err.ErrBuilder.Msg
	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryInvalidInput, CategoryMethodNotAllowed, CategoryUnsupportedMedia, CategoryRateLimit, CategoryRepositoryNotFound:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	case CategoryUpstreamUnavailable, CategoryTimeout, CategoryParse:
		if cause != nil {
			logEntry.Warn(msg, "cause", cause)
		} else {
			logEntry.Warn(msg)
		}
	default:
		if cause != nil {
			logEntry.Error(msg, "cause", cause)
		} else {
			logEntry.Error(msg)
		}
	}

	if err.StackTrace != "" && gin.Mode() == gin.DebugMode {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// The caller's own deadline is final
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch ToAppError(err).Category {
	case CategoryUpstreamUnavailable, CategoryTimeout, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
