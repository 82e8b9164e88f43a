package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

var (
	scriptTagRegex = regexp.MustCompile(`<script([^>]*)>`)
	styleTagRegex  = regexp.MustCompile(`<link([^>]*rel=["']stylesheet["'][^>]*)>`)
)

type indexData struct {
	Nonce string
}

// LoadIndexTemplate reads index.html and turns its script and stylesheet tags
// into nonce-carrying template placeholders.
func LoadIndexTemplate(dist fs.FS) (*template.Template, error) {
	raw, err := fs.ReadFile(dist, "index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read index.html: %w", err)
	}

	tmpl, err := template.New("index").Parse(injectNonce(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse index.html: %w", err)
	}

	return tmpl, nil
}

func injectNonce(html string) string {
	html = scriptTagRegex.ReplaceAllString(html, `<script nonce="{{.Nonce}}"$1>`)
	return styleTagRegex.ReplaceAllString(html, `<link nonce="{{.Nonce}}"$1>`)
}

// RenderIndex writes the page with nonce stamped into every script and stylesheet tag
func RenderIndex(c *gin.Context, tmpl *template.Template, nonce string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, indexData{Nonce: nonce}); err != nil {
		return fmt.Errorf("failed to execute index template: %w", err)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	return nil
}
