package security

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/gin-gonic/gin"
)

// MaxURLLength bounds the repository URL accepted by ParseRepositoryURL
const MaxURLLength = 2048

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

const (
	maxOwnerLength = 39
	maxRepoLength  = 100
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodyBytes:   16 * 1024,
		RequestTimeout: 60 * time.Second,
	}
}

// SecurityMiddleware groups the request hardening middleware
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// ValidateInput rejects input that cannot be a repository URL before any parsing
func ValidateInput(input string) error {
	if len(input) > MaxURLLength {
		return apperrors.NewInvalidInputError("repoUrl is too long",
			"maximum length is "+strconv.Itoa(MaxURLLength)+" bytes")
	}

	if strings.Contains(input, "\x00") {
		return apperrors.NewInvalidInputError("repoUrl contains invalid characters")
	}

	if !utf8.ValidString(input) {
		return apperrors.NewInvalidInputError("repoUrl contains invalid UTF-8 encoding")
	}

	return nil
}

// ParseRepositoryURL extracts owner and repository from a https://github.com URL.
// A trailing slash, a .git suffix and deeper paths such as /tree/main are tolerated.
func ParseRepositoryURL(raw string) (types.RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.RepoRef{}, apperrors.NewInvalidInputError("repoUrl is required")
	}

	if err := ValidateInput(raw); err != nil {
		return types.RepoRef{}, err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return types.RepoRef{}, apperrors.NewInvalidInputError("repoUrl is not a valid URL", err.Error())
	}

	if u.Scheme != "https" || !strings.EqualFold(u.Host, "github.com") || u.User != nil {
		return types.RepoRef{}, apperrors.NewInvalidInputError("repoUrl must start with https://github.com/")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return types.RepoRef{}, apperrors.NewInvalidInputError("repoUrl must name an owner and a repository")
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")

	if len(owner) > maxOwnerLength || !ownerPattern.MatchString(owner) {
		return types.RepoRef{}, apperrors.NewInvalidInputError("invalid GitHub owner", owner)
	}
	if len(name) > maxRepoLength || !repoPattern.MatchString(name) {
		return types.RepoRef{}, apperrors.NewInvalidInputError("invalid GitHub repository name", name)
	}

	return types.RepoRef{Owner: owner, Name: name}, nil
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	if sm.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// ValidateContentType rejects request bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
		c.Next()
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		c.Next()
		return
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		apperrors.Respond(c, apperrors.NewUnsupportedMediaTypeError(contentType))
		return
	}

	c.Next()
}

// LimitBody caps the number of bytes a handler may read from the request body
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}
