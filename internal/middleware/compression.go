package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // responses smaller than this are sent as is
	CompressionLevel int      // gzip level, 1 (fastest) to 9 (best)
	ContentTypes     []string // content types worth compressing
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: 6,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// Compressor gzips large JSON responses for clients that accept it
type Compressor struct {
	config CompressionConfig
	pool   sync.Pool

	total      int64
	compressed int64
	bytesIn    int64
	bytesOut   int64
}

// NewCompressor creates a compressor. An invalid level falls back to gzip.DefaultCompression.
func NewCompressor(config CompressionConfig) *Compressor {
	if _, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel); err != nil {
		config.CompressionLevel = gzip.DefaultCompression
	}

	cm := &Compressor{config: config}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler buffers the response of later handlers and gzips it on the way out
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.GetHeader("Accept-Encoding")) {
			c.Next()
			return
		}

		buffered := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = buffered
		c.Next()
		c.Writer = buffered.ResponseWriter

		cm.flush(buffered)
	}
}

func (cm *Compressor) flush(w *bufferedWriter) {
	body := w.body.Bytes()
	if len(body) == 0 {
		return
	}

	out := w.ResponseWriter
	atomic.AddInt64(&cm.total, 1)
	atomic.AddInt64(&cm.bytesIn, int64(len(body)))

	if !cm.eligible(out, len(body)) {
		atomic.AddInt64(&cm.bytesOut, int64(len(body)))
		_, _ = out.Write(body)
		return
	}

	var packed bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&packed)
	_, err := gz.Write(body)
	if err == nil {
		err = gz.Close()
	}
	cm.pool.Put(gz)

	if err != nil {
		atomic.AddInt64(&cm.bytesOut, int64(len(body)))
		_, _ = out.Write(body)
		return
	}

	h := out.Header()
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")

	atomic.AddInt64(&cm.compressed, 1)
	atomic.AddInt64(&cm.bytesOut, int64(packed.Len()))
	_, _ = out.Write(packed.Bytes())
}

func (cm *Compressor) eligible(w gin.ResponseWriter, size int) bool {
	if size < cm.config.MinSize {
		return false
	}
	if w.Header().Get("Content-Encoding") != "" {
		return false
	}
	if status := w.Status(); status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}

	contentType := w.Header().Get("Content-Type")
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// acceptsGzip reads an Accept-Encoding header, honouring q=0
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "gzip" && name != "*" {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		if q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
			continue
		}
		return true
	}
	return false
}

// GetStats returns compression statistics
func (cm *Compressor) GetStats() map[string]interface{} {
	bytesIn := atomic.LoadInt64(&cm.bytesIn)
	bytesOut := atomic.LoadInt64(&cm.bytesOut)

	ratio := float64(1)
	if bytesIn > 0 {
		ratio = float64(bytesOut) / float64(bytesIn)
	}

	return map[string]interface{}{
		"responses":            atomic.LoadInt64(&cm.total),
		"compressed_responses": atomic.LoadInt64(&cm.compressed),
		"bytes_in":             bytesIn,
		"bytes_out":            bytesOut,
		"compression_ratio":    ratio,
	}
}

// bufferedWriter holds the body until the handler chain returns
type bufferedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Written() bool {
	return w.body.Len() > 0 || w.ResponseWriter.Written()
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}
