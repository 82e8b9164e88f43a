package analysis

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
)

//go:embed prompt.tmpl
var defaultPrompt string

// Prompt renders the analysis request sent to the model
type Prompt struct {
	tmpl   *template.Template
	Source string
}

type promptData struct {
	URL      string
	Metadata *types.RepoMetadata
}

var promptFuncs = template.FuncMap{
	"join":      strings.Join,
	"languages": formatLanguages,
}

// LoadPrompt parses the template at path, falling back to the embedded one
// when path is empty or unreadable.
func LoadPrompt(path string) (*Prompt, error) {
	text, source := defaultPrompt, "embed:prompt.tmpl"

	if path != "" {
		b, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			slog.Warn("Prompt override unreadable, using embedded template", "path", path, "error", err)
		} else {
			text, source = string(b), "file:"+path
		}
	}

	tmpl, err := template.New("prompt").Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}

	return &Prompt{tmpl: tmpl, Source: source}, nil
}

// Render builds the prompt for ref. A nil metadata renders the URL-only variant.
func (p *Prompt) Render(ref types.RepoRef, meta *types.RepoMetadata) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, promptData{URL: ref.URL(), Metadata: meta}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// formatLanguages lists languages by byte count, largest first
func formatLanguages(langs map[string]int) string {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})

	var total int
	for _, n := range langs {
		total += n
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if total > 0 {
			parts = append(parts, fmt.Sprintf("%s (%.0f%%)", name, float64(langs[name])*100/float64(total)))
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}
