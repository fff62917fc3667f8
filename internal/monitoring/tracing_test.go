package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingConfig_Sampler(t *testing.T) {
	tests := []struct {
		name     string
		config   TracingConfig
		contains string
	}{
		{"default always samples", TracingConfig{}, "AlwaysOnSampler"},
		{"never", TracingConfig{Sampling: "never"}, "AlwaysOffSampler"},
		{"probability", TracingConfig{Sampling: "probability", SampleRate: 0.25}, "TraceIDRatioBased{0.25}"},
		{"probability without rate samples everything", TracingConfig{Sampling: "probability"}, "ParentBased{root:AlwaysOnSampler"},
		{"full rate samples everything", TracingConfig{Sampling: "probability", SampleRate: 1}, "ParentBased{root:AlwaysOnSampler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.config.Sampler().Description(), tt.contains)
		})
	}
}

func TestNewTracerProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(context.Background(), TracingConfig{ServiceName: "kbm-risk-test"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "work")
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Contains(t, recorder.Ended()[0].Resource().Attributes(), attribute.String("service.name", "kbm-risk-test"))
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r := gin.New()
	r.Use(TracingMiddleware(tp))
	r.GET("/model", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/quote", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	tests := []struct {
		name       string
		method     string
		path       string
		wantSpan   string
		wantStatus codes.Code
	}{
		{"successful request", http.MethodGet, "/model", "GET /model", codes.Unset},
		{"server error", http.MethodPost, "/quote", "POST /quote", codes.Error},
		{"unmatched route", http.MethodGet, "/nope", "GET unmatched", codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(recorder.Ended())

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			r.ServeHTTP(w, req)

			ended := recorder.Ended()
			require.Len(t, ended, before+1)
			span := ended[len(ended)-1]
			assert.Equal(t, tt.wantSpan, span.Name())
			assert.Equal(t, tt.wantStatus, span.Status().Code)
			assert.Equal(t, span.SpanContext().TraceID().String(), w.Header().Get(HeaderTraceID))
		})
	}
}
