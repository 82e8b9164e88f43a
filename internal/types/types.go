package types

import (
	"strings"
	"time"
)

// AnalyzeRequest represents the request structure for the analyze endpoint
type AnalyzeRequest struct {
	RepoURL string `json:"repoUrl"`
}

// RepoRef identifies a GitHub repository
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns owner/name
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// URL returns the canonical https://github.com URL of the repository
func (r RepoRef) URL() string {
	return "https://github.com/" + r.FullName()
}

// AnalysisResult is the structured answer produced by the model
type AnalysisResult struct {
	Score   float64  `json:"score"`
	Summary string   `json:"summary"`
	Roadmap []string `json:"roadmap"`
}

// FailureDetail describes why an analysis failed
type FailureDetail struct {
	Category  string `json:"category"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// FailurePayload is the zero-score response returned whenever the pipeline fails
type FailurePayload struct {
	AnalysisResult
	Error FailureDetail `json:"error"`
}

// DirEntry is a single item of a repository's root listing
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RepoMetadata holds the GitHub context used to enrich the prompt
type RepoMetadata struct {
	Owner         string         `json:"owner"`
	Name          string         `json:"name"`
	FullName      string         `json:"full_name"`
	Description   string         `json:"description"`
	Stars         int            `json:"stars"`
	Forks         int            `json:"forks"`
	OpenIssues    int            `json:"open_issues"`
	License       string         `json:"license"`
	DefaultBranch string         `json:"default_branch"`
	Topics        []string       `json:"topics"`
	Archived      bool           `json:"archived"`
	PushedAt      time.Time      `json:"pushed_at"`
	Languages     map[string]int `json:"languages"`
	Readme        string         `json:"readme"`
	Commits       []string       `json:"commits"`
	Contents      []DirEntry     `json:"contents"`
}

// HasReadme reports whether a README was fetched or the root listing contains one
func (m *RepoMetadata) HasReadme() bool {
	if m.Readme != "" {
		return true
	}
	for _, entry := range m.Contents {
		if entry.Type == "file" && strings.HasPrefix(strings.ToLower(entry.Name), "readme") {
			return true
		}
	}
	return false
}

// HasTests reports whether the root listing hints at a test suite
func (m *RepoMetadata) HasTests() bool {
	for _, entry := range m.Contents {
		name := strings.ToLower(entry.Name)
		if strings.Contains(name, "test") || strings.Contains(name, "spec") {
			return true
		}
	}
	return false
}

// ProbeReport is the result of the model provider diagnostic
type ProbeReport struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Model        string   `json:"model,omitempty"`
	StatusCode   int      `json:"statusCode,omitempty"`
	APIResponse  string   `json:"apiResponse,omitempty"`
	ErrorDetails string   `json:"errorDetails,omitempty"`
	Logs         []string `json:"logs"`
}
