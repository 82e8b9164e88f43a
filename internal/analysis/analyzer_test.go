package analysis

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepos struct {
	meta  *types.RepoMetadata
	err   error
	calls int
}

func (s *stubRepos) FetchMetadata(ctx context.Context, ref types.RepoRef) (*types.RepoMetadata, error) {
	s.calls++
	return s.meta, s.err
}

type stubModel struct {
	reply      string
	err        error
	configured bool
	prompts    []string
}

func (s *stubModel) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubModel) Configured() bool { return s.configured }
func (s *stubModel) Model() string    { return "test-model" }

func newTestAnalyzer(t *testing.T, repos MetadataSource, model Completer, enrich bool) (*Analyzer, *monitoring.Metrics, *bytes.Buffer) {
	t.Helper()
	prompt, err := LoadPrompt("")
	require.NoError(t, err)

	var logs bytes.Buffer
	metrics := monitoring.NewMetrics()
	analyzer := NewAnalyzer(repos, model, prompt, Options{
		Enrich: enrich,
		Cap:    EngagementCap{Enabled: true, LowStarThreshold: 10, MaxScore: 80},
	}, metrics, monitoring.NewLogger("debug", "json", &logs))
	return analyzer, metrics, &logs
}

func TestAnalyzeSuccess(t *testing.T) {
	repos := &stubRepos{meta: &types.RepoMetadata{FullName: "foo/bar", Stars: 120, Readme: "# bar"}}
	model := &stubModel{configured: true, reply: "```json\n{\"score\":85,\"summary\":\"Solid\",\"roadmap\":[\"Add CI\"]}\n```"}
	analyzer, metrics, logs := newTestAnalyzer(t, repos, model, true)

	out := analyzer.Analyze(context.Background(), "req-1", "https://github.com/foo/bar")

	require.True(t, out.OK(), "unexpected error: %v", out.Err)
	assert.Equal(t, http.StatusOK, out.Status())
	assert.Equal(t, types.AnalysisResult{Score: 85, Summary: "Solid", Roadmap: []string{"Add CI"}}, out.Body("req-1"))
	assert.Equal(t, StageDone, out.Stage)
	assert.Equal(t, "foo/bar", out.Repository)
	assert.True(t, out.Enriched)
	assert.False(t, out.Capped)

	assert.Equal(t, 1, repos.calls)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "https://github.com/foo/bar")
	assert.Contains(t, model.prompts[0], "Stars: 120")

	assert.Equal(t, int64(1), metrics.AnalysisCount)
	assert.Contains(t, logs.String(), "Analysis Completed")
}

func TestAnalyzeAppliesEngagementCap(t *testing.T) {
	repos := &stubRepos{meta: &types.RepoMetadata{FullName: "foo/bar", Stars: 3}}
	model := &stubModel{configured: true, reply: `{"score":95,"summary":"Great","roadmap":["Promote it"]}`}
	analyzer, _, _ := newTestAnalyzer(t, repos, model, true)

	out := analyzer.Analyze(context.Background(), "", "https://github.com/foo/bar")

	require.True(t, out.OK())
	assert.Equal(t, float64(80), out.Result.Score)
	assert.True(t, out.Capped)
}

func TestAnalyzeWithoutEnrichment(t *testing.T) {
	repos := &stubRepos{}
	model := &stubModel{configured: true, reply: `{"score":95,"summary":"Great","roadmap":[]}`}
	analyzer, _, _ := newTestAnalyzer(t, repos, model, false)

	out := analyzer.Analyze(context.Background(), "", "https://github.com/foo/bar")

	require.True(t, out.OK())
	assert.Zero(t, repos.calls)
	assert.False(t, out.Enriched)
	// no star count, so no cap
	assert.Equal(t, float64(95), out.Result.Score)
	require.Len(t, model.prompts, 1)
	assert.NotContains(t, model.prompts[0], "Repository stats")
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		repos        *stubRepos
		model        *stubModel
		wantStatus   int
		wantCategory apperrors.ErrorCategory
		wantStage    Stage
		wantRepoHits int
		wantPrompts  int
	}{
		{
			name:         "missing url",
			url:          "",
			repos:        &stubRepos{},
			model:        &stubModel{configured: true},
			wantStatus:   http.StatusBadRequest,
			wantCategory: apperrors.CategoryInvalidInput,
			wantStage:    StageValidating,
		},
		{
			name:         "not github",
			url:          "https://gitlab.com/foo/bar",
			repos:        &stubRepos{},
			model:        &stubModel{configured: true},
			wantStatus:   http.StatusBadRequest,
			wantCategory: apperrors.CategoryInvalidInput,
			wantStage:    StageValidating,
		},
		{
			name:         "missing credential",
			url:          "https://github.com/foo/bar",
			repos:        &stubRepos{},
			model:        &stubModel{},
			wantStatus:   http.StatusInternalServerError,
			wantCategory: apperrors.CategoryConfiguration,
			wantStage:    StageValidating,
		},
		{
			name:         "repository not found",
			url:          "https://github.com/foo/bar",
			repos:        &stubRepos{err: apperrors.NewRepositoryNotFoundError("foo/bar", nil)},
			model:        &stubModel{configured: true},
			wantStatus:   http.StatusNotFound,
			wantCategory: apperrors.CategoryRepositoryNotFound,
			wantStage:    StageFetchingContext,
			wantRepoHits: 1,
		},
		{
			name:         "model unavailable",
			url:          "https://github.com/foo/bar",
			repos:        &stubRepos{meta: &types.RepoMetadata{}},
			model:        &stubModel{configured: true, err: apperrors.NewUpstreamError("Groq", errors.New("503"))},
			wantStatus:   http.StatusBadGateway,
			wantCategory: apperrors.CategoryUpstreamUnavailable,
			wantStage:    StagePromptingModel,
			wantRepoHits: 1,
			wantPrompts:  1,
		},
		{
			name:         "model timeout",
			url:          "https://github.com/foo/bar",
			repos:        &stubRepos{meta: &types.RepoMetadata{}},
			model:        &stubModel{configured: true, err: context.DeadlineExceeded},
			wantStatus:   http.StatusGatewayTimeout,
			wantCategory: apperrors.CategoryTimeout,
			wantStage:    StagePromptingModel,
			wantRepoHits: 1,
			wantPrompts:  1,
		},
		{
			name:         "non json reply",
			url:          "https://github.com/foo/bar",
			repos:        &stubRepos{meta: &types.RepoMetadata{}},
			model:        &stubModel{configured: true, reply: "I am unable to browse the internet."},
			wantStatus:   http.StatusBadGateway,
			wantCategory: apperrors.CategoryParse,
			wantStage:    StageParsing,
			wantRepoHits: 1,
			wantPrompts:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer, metrics, _ := newTestAnalyzer(t, tt.repos, tt.model, true)

			out := analyzer.Analyze(context.Background(), "req-9", tt.url)

			require.False(t, out.OK())
			assert.Equal(t, tt.wantStatus, out.Status())
			assert.Equal(t, tt.wantCategory, out.Err.Category)
			assert.Equal(t, tt.wantStage, out.Stage)
			assert.Equal(t, tt.wantRepoHits, tt.repos.calls)
			assert.Len(t, tt.model.prompts, tt.wantPrompts)
			assert.Equal(t, int64(1), metrics.AnalysisFailures)

			payload, ok := out.Body("req-9").(types.FailurePayload)
			require.True(t, ok)
			assert.Zero(t, payload.Score)
			assert.NotEmpty(t, payload.Summary)
			assert.NotEmpty(t, payload.Roadmap)
			assert.Equal(t, "req-9", payload.Error.RequestID)
		})
	}
}

func TestPromptRender(t *testing.T) {
	prompt, err := LoadPrompt("")
	require.NoError(t, err)
	assert.Equal(t, "embed:prompt.tmpl", prompt.Source)

	ref := types.RepoRef{Owner: "foo", Name: "bar"}

	t.Run("url only", func(t *testing.T) {
		text, err := prompt.Render(ref, nil)
		require.NoError(t, err)
		assert.Contains(t, text, "https://github.com/foo/bar")
		assert.Contains(t, text, `"roadmap"`)
		assert.NotContains(t, text, "Stars:")
	})

	t.Run("with metadata", func(t *testing.T) {
		meta := &types.RepoMetadata{
			FullName:    "foo/bar",
			Description: "A tiny tool",
			Stars:       3,
			License:     "MIT",
			Topics:      []string{"cli", "go"},
			PushedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Languages:   map[string]int{"Go": 300, "Shell": 100},
			Readme:      "# bar",
			Commits:     []string{"Add parser", "Fix typo"},
			Contents:    []types.DirEntry{{Name: "main_test.go", Type: "file"}},
		}
		text, err := prompt.Render(ref, meta)
		require.NoError(t, err)

		for _, want := range []string{
			"Description: A tiny tool",
			"Stars: 3",
			"License: MIT",
			"Topics: cli, go",
			"Last push: 2024-05-01",
			"Languages: Go (75%), Shell (25%)",
			"Files at the repository root: 1",
			"README present: true",
			"Tests present: true",
			"- Add parser",
			"README excerpt:\n# bar",
		} {
			assert.Contains(t, text, want)
		}
	})
}

func TestLoadPromptOverride(t *testing.T) {
	dir := t.TempDir()

	t.Run("file wins", func(t *testing.T) {
		path := filepath.Join(dir, "custom.tmpl")
		require.NoError(t, os.WriteFile(path, []byte("Rate {{ .URL }}"), 0o600))

		prompt, err := LoadPrompt(path)
		require.NoError(t, err)
		text, err := prompt.Render(types.RepoRef{Owner: "a", Name: "b"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Rate https://github.com/a/b", text)
	})

	t.Run("missing file falls back", func(t *testing.T) {
		prompt, err := LoadPrompt(filepath.Join(dir, "absent.tmpl"))
		require.NoError(t, err)
		assert.Equal(t, "embed:prompt.tmpl", prompt.Source)
	})

	t.Run("bad template", func(t *testing.T) {
		path := filepath.Join(dir, "broken.tmpl")
		require.NoError(t, os.WriteFile(path, []byte("{{ .URL "), 0o600))
		_, err := LoadPrompt(path)
		assert.Error(t, err)
	})
}
