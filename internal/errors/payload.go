package errors

import (
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/gin-gonic/gin"
)

type remedy struct {
	summary string
	roadmap []string
}

var remedies = map[ErrorCategory]remedy{
	CategoryInvalidInput: {
		summary: "Invalid GitHub URL",
		roadmap: []string{
			"Provide a valid GitHub repository URL",
			"Use the form https://github.com/<owner>/<repo>",
		},
	},
	CategoryMethodNotAllowed: {
		summary: "Method not allowed",
		roadmap: []string{
			"Send a POST request to /api/analyze",
			"Include a JSON body with a repoUrl field",
		},
	},
	CategoryUnsupportedMedia: {
		summary: "Unsupported content type",
		roadmap: []string{"Send the request body as application/json"},
	},
	CategoryConfiguration: {
		summary: "Analysis service is not configured",
		roadmap: []string{
			"Set GROQ_API_KEY in the server environment",
			"Restart the service after updating its configuration",
		},
	},
	CategoryRepositoryNotFound: {
		summary: "Repository not found or private",
		roadmap: []string{
			"Check the repository URL for typos",
			"Ensure the repository is public",
			"Try again later",
		},
	},
	CategoryUpstreamUnavailable: {
		summary: "Analysis failed",
		roadmap: []string{
			"Check that GitHub and the model provider are reachable",
			"Ensure the repository is public",
			"Try again later",
		},
	},
	CategoryParse: {
		summary: "The model returned an unreadable analysis",
		roadmap: []string{
			"Run the analysis again",
			"Switch to a different model if the problem persists",
		},
	},
	CategoryTimeout: {
		summary: "Analysis timed out",
		roadmap: []string{
			"Try again later",
			"Check the status of GitHub and the model provider",
		},
	},
	CategoryRateLimit: {
		summary: "Too many requests",
		roadmap: []string{"Wait a minute before analyzing another repository"},
	},
	CategoryInternal: {
		summary: "Analysis failed",
		roadmap: []string{"Try again later"},
	},
}

// Payload builds the zero-score fallback body for an error
func Payload(err *AppError, requestID string) types.FailurePayload {
	r, ok := remedies[err.Category]
	if !ok {
		r = remedies[CategoryInternal]
	}

	summary := r.summary
	if err.Category == CategoryInvalidInput {
		summary = fmt.Sprintf("%s: %s", r.summary, err.Message())
	}

	roadmap := make([]string, len(r.roadmap))
	copy(roadmap, r.roadmap)

	return types.FailurePayload{
		AnalysisResult: types.AnalysisResult{
			Score:   0,
			Summary: summary,
			Roadmap: roadmap,
		},
		Error: types.FailureDetail{
			Category:  string(err.Category),
			Message:   err.Message(),
			RequestID: requestID,
		},
	}
}

// Respond logs the error and writes the fallback payload, aborting the chain
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, Payload(appErr, c.GetString("request_id")))
}

// ErrorHandler is a Gin middleware that turns errors attached with c.Error into fallback payloads
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		Respond(c, c.Errors.Last().Err)
	}
}

// RecoveryHandler provides panic recovery with a fallback payload
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()

		slog.Error("Panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		Respond(c, appErr)
	})
}
