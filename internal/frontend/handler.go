package frontend

import (
	"html/template"
	"io/fs"
	"net/http"

	apperrors "github.com/ZanzyTHEbar/repo-analyzer/internal/errors"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/security"
	"github.com/gin-gonic/gin"
)

// Page serves the embedded analysis page and its static assets
type Page struct {
	assets http.Handler
	index  *template.Template
}

// NewPage loads index.html from dist and prepares the asset file server
func NewPage(dist fs.FS) (*Page, error) {
	index, err := LoadIndexTemplate(dist)
	if err != nil {
		return nil, err
	}
	return &Page{
		assets: http.FileServer(http.FS(dist)),
		index:  index,
	}, nil
}

// Register mounts the page on / and its files under /assets/.
// CSP nonces are only issued on these routes.
func (p *Page) Register(r gin.IRouter) {
	group := r.Group("/", security.CSPMiddleware(""))
	group.GET("/", p.Index)
	group.HEAD("/", p.Index)
	group.GET("/assets/*filepath", p.Asset)
	group.HEAD("/assets/*filepath", p.Asset)
}

// Index renders index.html with the request's nonce
func (p *Page) Index(c *gin.Context) {
	nonce := security.GetNonce(c)
	if nonce == "" {
		var err error
		if nonce, err = security.GenerateNonce(); err != nil {
			apperrors.Respond(c, apperrors.NewInternalError("nonce generation failed", err))
			return
		}
	}

	if err := RenderIndex(c, p.index, nonce); err != nil {
		apperrors.Respond(c, apperrors.NewInternalError("failed to render page", err))
	}
}

// Asset serves a file from dist/assets with long-lived caching
func (p *Page) Asset(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	p.assets.ServeHTTP(c.Writer, c.Request)
}
