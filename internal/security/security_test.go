package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Contains(t, config.AllowedOrigins, "http://localhost:3000")
	assert.False(t, config.EnableHSTS)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, int64(8<<20), config.MaxBodyBytes)

	m := NewMiddleware(Config{})
	assert.Equal(t, 30*time.Second, m.Config().RequestTimeout)
	assert.Equal(t, int64(8<<20), m.Config().MaxBodyBytes)
}

func TestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		hsts     bool
		path     string
		wantHSTS bool
		wantCSP  bool
	}{
		{"api route", false, "/quote", false, true},
		{"hsts enabled", true, "/quote", true, true},
		{"swagger ui", false, "/swagger/index.html", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(Config{EnableHSTS: tt.hsts})
			r := gin.New()
			r.Use(m.Headers())
			r.GET("/*path", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"ok": true})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			r.ServeHTTP(w, req)

			headers := w.Header()
			assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
			assert.Equal(t, "strict-origin-when-cross-origin", headers.Get("Referrer-Policy"))
			assert.Equal(t, tt.wantHSTS, headers.Get("Strict-Transport-Security") != "")
			assert.Equal(t, tt.wantCSP, headers.Get("Content-Security-Policy") != "")
		})
	}
}

func TestValidateContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(DefaultConfig())

	r := gin.New()
	r.Use(m.ValidateContentType())
	r.POST("/quote", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	r.GET("/quote", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		expectedStatus int
	}{
		{"json", http.MethodPost, "application/json", `{"a":1}`, http.StatusOK},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", `{"a":1}`, http.StatusOK},
		{"form data", http.MethodPost, "application/x-www-form-urlencoded", "a=1", http.StatusUnsupportedMediaType},
		{"plain text", http.MethodPost, "text/plain", "hello", http.StatusUnsupportedMediaType},
		{"missing type", http.MethodPost, "", `{"a":1}`, http.StatusUnsupportedMediaType},
		{"empty body", http.MethodPost, "", "", http.StatusOK},
		{"get ignores type", http.MethodGet, "text/plain", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/quote", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(Config{MaxBodyBytes: 16})

	r := gin.New()
	r.Use(m.LimitBody())
	r.POST("/quote", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, body)
	})

	tests := []struct {
		name           string
		body           string
		chunked        bool
		expectedStatus int
	}{
		{"small body", `{"a":1}`, false, http.StatusOK},
		{"declared too large", `{"a":"` + strings.Repeat("x", 32) + `"}`, false, http.StatusRequestEntityTooLarge},
		{"streamed too large", `{"a":"` + strings.Repeat("x", 32) + `"}`, true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/quote", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.chunked {
				req.ContentLength = -1
			}

			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		allowed        []string
		origin         string
		method         string
		expectedStatus int
		wantAllow      string
	}{
		{"allowed origin", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodGet, http.StatusOK, "http://localhost:3000"},
		{"disallowed origin", []string{"http://localhost:3000"}, "http://evil.example", http.MethodGet, http.StatusForbidden, ""},
		{"preflight", []string{"http://localhost:3000"}, "http://localhost:3000", http.MethodOptions, http.StatusNoContent, "http://localhost:3000"},
		{"wildcard", []string{"*"}, "http://anything.example", http.MethodGet, http.StatusOK, "*"},
		{"no origin header", []string{"http://localhost:3000"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(Config{AllowedOrigins: tt.allowed})
			r := gin.New()
			r.Use(m.CORS())
			r.GET("/model", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"ok": true})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/model", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(Config{RequestTimeout: time.Millisecond})

	r := gin.New()
	r.Use(m.RequestTimeout())

	var ctxErr error
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			ctxErr = c.Request.Context().Err()
		case <-time.After(time.Second):
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/slow", nil)

	start := time.Now()
	r.ServeHTTP(w, req)

	require.Error(t, ctxErr)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "0", w.Header().Get("X-Timeout"))
}
