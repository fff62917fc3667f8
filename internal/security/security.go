package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds security configuration
type Config struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	EnableHSTS     bool          `json:"enable_hsts"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
}

// DefaultConfig returns secure defaults
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   8 << 20,
	}
}

// Middleware groups the request guards of the API
type Middleware struct {
	config Config
}

// NewMiddleware creates a new security middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Middleware{config: config}
}

// Config returns the effective configuration
func (m *Middleware) Config() Config { return m.config }

// Headers adds the response security headers
func (m *Middleware) Headers() gin.HandlerFunc {
	return HeadersMiddleware(m.config.EnableHSTS)
}

// CORS allows the configured browser origins to call the API
func (m *Middleware) CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Cache", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	for _, o := range m.config.AllowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			break
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = m.config.AllowedOrigins
		if len(cfg.AllowOrigins) == 0 {
			// cors.New rejects an empty origin list
			cfg.AllowOriginFunc = func(string) bool { return false }
		}
	}

	return cors.New(cfg)
}

// ValidateContentType rejects request bodies that are not JSON
func (m *Middleware) ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if !strings.HasPrefix(contentType, "application/json") {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "UNSUPPORTED_MEDIA_TYPE",
				"message": "request body must be application/json",
			})
			return
		}

		c.Next()
	}
}

// LimitBody caps the size of request bodies
func (m *Middleware) LimitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > m.config.MaxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "REQUEST_TOO_LARGE",
				"message": "request body exceeds " + strconv.FormatInt(m.config.MaxBodyBytes, 10) + " bytes",
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.config.MaxBodyBytes)
		}
		c.Next()
	}
}

// RequestTimeout bounds the request context
func (m *Middleware) RequestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), m.config.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(m.config.RequestTimeout.Seconds())))

		c.Next()
	}
}
