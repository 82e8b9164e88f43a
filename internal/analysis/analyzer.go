package analysis

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/monitoring"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/security"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
)

// MetadataSource supplies GitHub context for a repository
type MetadataSource interface {
	FetchMetadata(ctx context.Context, ref types.RepoRef) (*types.RepoMetadata, error)
}

// Completer sends a prompt to a language model
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Configured() bool
	Model() string
}

// Stage names the pipeline step an Outcome stopped at
type Stage string

const (
	StageValidating      Stage = "validating"
	StageFetchingContext Stage = "fetching_context"
	StagePromptingModel  Stage = "prompting_model"
	StageParsing         Stage = "parsing_response"
	StageDone            Stage = "done"
)

// Outcome is the single value handed to the responder: a result or a tagged error
type Outcome struct {
	Result     types.AnalysisResult
	Err        *apperrors.AppError
	Stage      Stage
	Repository string
	Enriched   bool
	Capped     bool
	Duration   time.Duration
}

// OK reports whether the analysis produced a result
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Status is the HTTP status for the outcome
func (o Outcome) Status() int {
	if o.Err != nil {
		return o.Err.HTTPStatus
	}
	return http.StatusOK
}

// Body is the JSON body for the outcome: the bare result or the fallback payload
func (o Outcome) Body(requestID string) interface{} {
	if o.Err != nil {
		return apperrors.Payload(o.Err, requestID)
	}
	return o.Result
}

// Options tune the pipeline
type Options struct {
	Enrich bool
	Cap    EngagementCap
}

// Analyzer runs validate, fetch, prompt, parse for one repository URL
type Analyzer struct {
	repos   MetadataSource
	model   Completer
	prompt  *Prompt
	options Options
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

// NewAnalyzer wires the pipeline. repos may be nil when enrichment is disabled.
func NewAnalyzer(repos MetadataSource, model Completer, prompt *Prompt, options Options, metrics *monitoring.Metrics, logger *monitoring.Logger) *Analyzer {
	if repos == nil {
		options.Enrich = false
	}
	if logger == nil {
		logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return &Analyzer{
		repos:   repos,
		model:   model,
		prompt:  prompt,
		options: options,
		metrics: metrics,
		logger:  logger,
	}
}

// Analyze runs the pipeline for repoURL. It never returns a nil-valued failure:
// every error is carried in the Outcome.
func (a *Analyzer) Analyze(ctx context.Context, requestID, repoURL string) Outcome {
	start := time.Now()
	out := a.run(ctx, repoURL)
	out.Duration = time.Since(start)

	if a.metrics != nil {
		a.metrics.RecordAnalysis(out.Result.Score, out.OK())
	}

	if out.OK() {
		a.logger.AnalysisLogger(requestID, out.Repository, a.model.Model(), out.Result.Score, out.Enriched, out.Duration)
	} else {
		a.logger.Warn("Analysis Failed",
			"request_id", requestID,
			"repository", out.Repository,
			"stage", out.Stage,
			"category", out.Err.Category,
			"error", out.Err.Error(),
			"duration_ms", out.Duration.Milliseconds(),
		)
	}

	return out
}

func (a *Analyzer) run(ctx context.Context, repoURL string) Outcome {
	out := Outcome{Stage: StageValidating}

	ref, err := security.ParseRepositoryURL(repoURL)
	if err != nil {
		return out.fail(err)
	}
	out.Repository = ref.FullName()

	// fail before touching GitHub when the model cannot be reached anyway
	if !a.model.Configured() {
		return out.fail(apperrors.NewConfigurationError("GROQ_API_KEY is not set", nil))
	}

	var meta *types.RepoMetadata
	if a.options.Enrich {
		out.Stage = StageFetchingContext
		meta, err = a.repos.FetchMetadata(ctx, ref)
		if err != nil {
			return out.fail(err)
		}
		out.Enriched = true
	}

	out.Stage = StagePromptingModel
	prompt, err := a.prompt.Render(ref, meta)
	if err != nil {
		return out.fail(apperrors.NewInternalError("failed to build prompt", err))
	}

	reply, err := a.model.Complete(ctx, prompt)
	if err != nil {
		return out.fail(err)
	}

	out.Stage = StageParsing
	result, err := ExtractResult(reply)
	if err != nil {
		return out.fail(err)
	}

	result.Score, out.Capped = a.options.Cap.Apply(result.Score, meta)

	out.Result = result
	out.Stage = StageDone
	return out
}

func (o Outcome) fail(err error) Outcome {
	o.Err = apperrors.ToAppError(err)
	return o
}
