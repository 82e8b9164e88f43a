package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dist, err := GetDistFS()
	require.NoError(t, err)
	page, err := NewPage(dist)
	require.NoError(t, err)

	r := gin.New()
	page.Register(r)
	return r
}

func TestIndexCarriesNonce(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	policy := w.Header().Get("Content-Security-Policy")
	require.Contains(t, policy, "'nonce-")
	nonce := strings.SplitN(strings.SplitN(policy, "'nonce-", 2)[1], "'", 2)[0]

	body := w.Body.String()
	assert.Contains(t, body, `<script nonce="`+nonce+`"`)
	assert.Contains(t, body, `<link nonce="`+nonce+`"`)
	assert.NotContains(t, body, "{{.Nonce}}")
}

func TestNoncesDifferPerRequest(t *testing.T) {
	r := newTestRouter(t)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEqual(t,
		first.Header().Get("Content-Security-Policy"),
		second.Header().Get("Content-Security-Policy"))
}

func TestAssets(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/assets/app.js", http.StatusOK, "/api/analyze"},
		{"/assets/style.css", http.StatusOK, "font-family"},
		{"/assets/missing.js", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
				assert.Contains(t, w.Header().Get("Cache-Control"), "max-age")
			}
		})
	}
}

func TestLoadIndexTemplateRequiresIndex(t *testing.T) {
	_, err := LoadIndexTemplate(fstest.MapFS{})
	assert.Error(t, err)
}

func TestInjectNonce(t *testing.T) {
	in := `<link rel="stylesheet" href="/a.css"><link rel="icon" href="/f.ico"><script src="/a.js"></script>`
	out := injectNonce(in)

	assert.Contains(t, out, `<link nonce="{{.Nonce}}" rel="stylesheet" href="/a.css">`)
	assert.Contains(t, out, `<link rel="icon" href="/f.ico">`)
	assert.Contains(t, out, `<script nonce="{{.Nonce}}" src="/a.js">`)
}
