package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/resilience"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
)

const userAgent = "repo-analyzer"

// GitHubConfig controls how much context is pulled for each repository
type GitHubConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration // per call
	ReadmeMaxChars int
	CommitLimit    int
	ContentsLimit  int
	Retry          resilience.RetryConfig
}

// GitHubAdapter fetches repository metadata through the GitHub REST API
type GitHubAdapter struct {
	client *github.Client
	pool   *resilience.ConnectionPool
	config GitHubConfig
}

// NewGitHubAdapter builds a go-github client on top of the pool's breaker-guarded transport.
// A token, when present, is attached through an oauth2 static token source.
func NewGitHubAdapter(config GitHubConfig, pool *resilience.ConnectionPool) (*GitHubAdapter, error) {
	httpClient := pool.Client()
	if config.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, src)
	}

	client := github.NewClient(httpClient)
	client.UserAgent = userAgent

	if config.BaseURL != "" {
		base := config.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &GitHubAdapter{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// FetchRepository performs the primary repository lookup, retrying transient failures
func (g *GitHubAdapter) FetchRepository(ctx context.Context, ref types.RepoRef) (*github.Repository, error) {
	var repo *github.Repository

	err := resilience.RetryWithConfig(ctx, g.config.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		r, _, err := g.client.Repositories.Get(callCtx, ref.Owner, ref.Name)
		if err != nil {
			return classifyGitHubError(ref, err)
		}
		repo = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// FetchMetadata gathers the repository record plus README, recent commits,
// languages and root listing. Only the repository record is mandatory; the
// rest degrade to empty values.
func (g *GitHubAdapter) FetchMetadata(ctx context.Context, ref types.RepoRef) (*types.RepoMetadata, error) {
	repo, err := g.FetchRepository(ctx, ref)
	if err != nil {
		return nil, err
	}

	meta := &types.RepoMetadata{
		Owner:         ref.Owner,
		Name:          ref.Name,
		FullName:      ref.FullName(),
		Description:   repo.GetDescription(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		License:       repo.GetLicense().GetSPDXID(),
		DefaultBranch: repo.GetDefaultBranch(),
		Topics:        repo.Topics,
		Archived:      repo.GetArchived(),
		PushedAt:      repo.GetPushedAt().Time,
		Languages:     map[string]int{},
	}

	g.enrich(ctx, ref, "readme", func(ctx context.Context) (err error) {
		meta.Readme, err = g.fetchReadme(ctx, ref)
		return err
	})
	g.enrich(ctx, ref, "commits", func(ctx context.Context) (err error) {
		meta.Commits, err = g.fetchCommits(ctx, ref)
		return err
	})
	g.enrich(ctx, ref, "languages", func(ctx context.Context) error {
		languages, _, err := g.client.Repositories.ListLanguages(ctx, ref.Owner, ref.Name)
		if err == nil {
			meta.Languages = languages
		}
		return err
	})
	g.enrich(ctx, ref, "contents", func(ctx context.Context) (err error) {
		meta.Contents, err = g.fetchContents(ctx, ref)
		return err
	})

	return meta, nil
}

// enrich runs one best-effort call under its own deadline; failures are logged and dropped
func (g *GitHubAdapter) enrich(ctx context.Context, ref types.RepoRef, call string, fetch func(context.Context) error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if err := fetch(callCtx); err != nil {
		slog.Warn("GitHub enrichment call failed",
			"repository", ref.FullName(),
			"call", call,
			"error", err)
	}
}

func (g *GitHubAdapter) fetchReadme(ctx context.Context, ref types.RepoRef) (string, error) {
	content, _, err := g.client.Repositories.GetReadme(ctx, ref.Owner, ref.Name, nil)
	if err != nil {
		return "", err
	}

	text, err := content.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode README: %w", err)
	}

	return truncate(text, g.config.ReadmeMaxChars), nil
}

func (g *GitHubAdapter) fetchCommits(ctx context.Context, ref types.RepoRef) ([]string, error) {
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: g.config.CommitLimit},
	}

	commits, _, err := g.client.Repositories.ListCommits(ctx, ref.Owner, ref.Name, opts)
	if err != nil {
		return nil, err
	}

	messages := make([]string, 0, len(commits))
	for _, c := range commits {
		msg := c.GetCommit().GetMessage()
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			messages = append(messages, msg)
		}
	}

	if g.config.CommitLimit > 0 && len(messages) > g.config.CommitLimit {
		messages = messages[:g.config.CommitLimit]
	}
	return messages, nil
}

func (g *GitHubAdapter) fetchContents(ctx context.Context, ref types.RepoRef) ([]types.DirEntry, error) {
	_, dir, _, err := g.client.Repositories.GetContents(ctx, ref.Owner, ref.Name, "", nil)
	if err != nil {
		return nil, err
	}

	entries := make([]types.DirEntry, 0, len(dir))
	for _, item := range dir {
		if g.config.ContentsLimit > 0 && len(entries) >= g.config.ContentsLimit {
			break
		}
		entries = append(entries, types.DirEntry{Name: item.GetName(), Type: item.GetType()})
	}
	return entries, nil
}

// GetPoolStats exposes the underlying connection pool statistics
func (g *GitHubAdapter) GetPoolStats() map[string]interface{} {
	return g.pool.GetStats()
}

// Close releases pooled connections
func (g *GitHubAdapter) Close() error {
	return g.pool.Close()
}

// classifyGitHubError maps go-github failures onto the service's error categories
func classifyGitHubError(ref types.RepoRef, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return apperrors.NewUpstreamError("GitHub", err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; code {
		case http.StatusNotFound, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
			return apperrors.NewRepositoryNotFoundError(ref.FullName(), err)
		default:
			// the status decides whether the retry loop tries again
			return apperrors.NewUpstreamError("GitHub", resilience.NewHTTPError(code, respErr.Message))
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError("GitHub request timed out", err)
	}

	var cbErr *resilience.CircuitBreakerError
	if errors.As(err, &cbErr) {
		return apperrors.NewUpstreamError("GitHub", err)
	}

	return apperrors.ToAppError(err)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
