package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // first write smaller than this is sent as-is
	CompressionLevel int      // gzip level 1-9
	ContentTypes     []string // prefixes of compressible content types
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"text/javascript",
			"application/javascript",
		},
	}
}

// Compressor gzips eligible responses for clients that accept it
type Compressor struct {
	config CompressionConfig
	stats  CompressionStats
	pool   sync.Pool
}

// NewCompressor creates a gzip compressor with a pool of writers
func NewCompressor(config CompressionConfig) *Compressor {
	cm := &Compressor{config: config}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !acceptsGzip(c.Request) {
			c.Next()
			return
		}

		gw := &gzipWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = gw
		defer func() {
			gw.finish()
			c.Writer = gw.ResponseWriter
		}()

		c.Next()
	}
}

// Stats returns the compression counters
func (cm *Compressor) Stats() map[string]interface{} {
	return cm.stats.snapshot()
}

func (cm *Compressor) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if enc == "gzip" || enc == "*" {
			return true
		}
	}
	return false
}

// gzipWriter decides on the first Write whether the body is compressed.
// gin holds the status line until then, so headers can still change.
type gzipWriter struct {
	gin.ResponseWriter
	cm      *Compressor
	gz      *gzip.Writer
	decided bool
	raw     int64
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	if !w.decided {
		w.decide(data)
	}
	if w.gz == nil {
		return w.ResponseWriter.Write(data)
	}
	n, err := w.gz.Write(data)
	w.raw += int64(n)
	return n, err
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) decide(first []byte) {
	w.decided = true

	h := w.Header()
	if h.Get("Content-Encoding") != "" || len(first) < w.cm.config.MinSize {
		return
	}
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(first)
	}
	if !w.cm.shouldCompress(contentType) {
		return
	}

	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")

	gz := w.cm.pool.Get().(*gzip.Writer)
	gz.Reset(w.ResponseWriter)
	w.gz = gz
}

func (w *gzipWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipWriter) finish() {
	if w.gz == nil {
		w.cm.stats.record(int64(w.ResponseWriter.Size()), 0, false)
		return
	}
	_ = w.gz.Close()
	w.cm.pool.Put(w.gz)
	w.cm.stats.record(w.raw, int64(w.ResponseWriter.Size()), true)
	w.gz = nil
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalResponses      int64
	CompressedResponses int64
	RawBytes            int64
	CompressedBytes     int64
}

func (cs *CompressionStats) record(rawSize, compressedSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalResponses, 1)
	if rawSize > 0 {
		atomic.AddInt64(&cs.RawBytes, rawSize)
	}
	if compressed {
		atomic.AddInt64(&cs.CompressedResponses, 1)
		atomic.AddInt64(&cs.CompressedBytes, compressedSize)
	}
}

func (cs *CompressionStats) snapshot() map[string]interface{} {
	raw := atomic.LoadInt64(&cs.RawBytes)
	compressed := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := 0.0
	if raw > 0 && compressed > 0 {
		ratio = float64(compressed) / float64(raw)
	}

	return map[string]interface{}{
		"total_responses":      atomic.LoadInt64(&cs.TotalResponses),
		"compressed_responses": atomic.LoadInt64(&cs.CompressedResponses),
		"raw_bytes":            raw,
		"compressed_bytes":     compressed,
		"compression_ratio":    ratio,
	}
}
