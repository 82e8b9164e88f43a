package analysis

import (
	"encoding/json"
	"regexp"
	"strings"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/tidwall/gjson"
)

const (
	minScore = 0
	maxScore = 100
)

var fencePattern = regexp.MustCompile("(?s)\\A```[A-Za-z]*[ \t]*\r?\n?(.*?)\r?\n?[ \t]*```\\z")

// StripCodeFences returns the body of a Markdown code fence that wraps the
// whole of text, or the trimmed text when it is not fenced.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ExtractResult turns a model reply into a validated AnalysisResult.
// The raw reply is parsed first, then its fenced body, then the span from
// the first '{' to the last '}' of each.
func ExtractResult(text string) (types.AnalysisResult, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return types.AnalysisResult{}, apperrors.NewParseError("model reply was empty", nil)
	}
	if isJSONObject(raw) {
		return decodeResult(raw)
	}

	body := StripCodeFences(raw)
	if body != raw && isJSONObject(body) {
		return decodeResult(body)
	}

	found := false
	for _, source := range []string{body, raw} {
		start := strings.Index(source, "{")
		end := strings.LastIndex(source, "}")
		if start < 0 || end <= start {
			continue
		}
		found = true
		if candidate := source[start : end+1]; isJSONObject(candidate) {
			return decodeResult(candidate)
		}
	}

	if !found {
		return types.AnalysisResult{}, apperrors.NewParseError("no JSON object in model reply", nil)
	}
	return types.AnalysisResult{}, apperrors.NewParseError("model reply is not valid JSON", nil)
}

func isJSONObject(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsObject()
}

func decodeResult(doc string) (types.AnalysisResult, error) {
	parsed := gjson.Parse(doc)

	if score := parsed.Get("score"); score.Type != gjson.Number {
		return types.AnalysisResult{}, apperrors.NewParseError("score must be a number", nil)
	}

	summary := parsed.Get("summary")
	if summary.Type != gjson.String || strings.TrimSpace(summary.String()) == "" {
		return types.AnalysisResult{}, apperrors.NewParseError("summary must be a non-empty string", nil)
	}

	roadmap := parsed.Get("roadmap")
	if !roadmap.IsArray() {
		return types.AnalysisResult{}, apperrors.NewParseError("roadmap must be an array", nil)
	}
	for _, item := range roadmap.Array() {
		if item.Type != gjson.String {
			return types.AnalysisResult{}, apperrors.NewParseError("roadmap must contain only strings", nil)
		}
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return types.AnalysisResult{}, apperrors.NewParseError("model reply does not match the result shape", err)
	}

	result.Summary = strings.TrimSpace(result.Summary)
	result.Score = clampScore(result.Score)

	steps := make([]string, 0, len(result.Roadmap))
	for _, step := range result.Roadmap {
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}
	result.Roadmap = steps

	return result, nil
}

func clampScore(score float64) float64 {
	switch {
	case score < minScore:
		return minScore
	case score > maxScore:
		return maxScore
	default:
		return score
	}
}
