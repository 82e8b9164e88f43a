package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressedRouter(cm *Compressor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/big", func(c *gin.Context) {
		c.String(http.StatusOK, strings.Repeat("roadmap ", 512))
	})
	r.GET("/small", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"score": 85})
	})
	r.GET("/binary", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", make([]byte, 4096))
	})
	return r
}

func TestCompression(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	r := newCompressedRouter(cm)

	tests := []struct {
		name         string
		path         string
		acceptGzip   bool
		wantEncoding string
	}{
		{"large text is compressed", "/big", true, "gzip"},
		{"client without gzip", "/big", false, ""},
		{"small body is left alone", "/small", true, ""},
		{"binary is left alone", "/binary", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantEncoding, w.Header().Get("Content-Encoding"))
		})
	}
}

func TestCompressedBodyRoundTrips(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	r := newCompressedRouter(cm)

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("roadmap ", 512), string(body))

	stats := cm.Stats()
	assert.Equal(t, int64(1), stats["compressed_responses"])
	assert.Equal(t, int64(4096), stats["raw_bytes"])
	assert.Less(t, stats["compressed_bytes"].(int64), int64(4096))
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"br;q=1.0, gzip;q=0.8", true},
		{"*", true},
		{"identity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", tt.header)
			assert.Equal(t, tt.want, acceptsGzip(req))
		})
	}
}
