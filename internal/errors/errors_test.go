package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		category   ErrorCategory
		status     int
		messageHas string
	}{
		{
			name:       "malformed input",
			err:        NewMalformedInputError(2, "driver_age", "is not numeric"),
			category:   CategoryMalformedInput,
			status:     http.StatusBadRequest,
			messageHas: "[MALFORMED_INPUT] record 2: field \"driver_age\" is not numeric",
		},
		{
			name:       "missing column",
			err:        NewMissingColumnError("dtc"),
			category:   CategoryMissingColumn,
			status:     http.StatusUnprocessableEntity,
			messageHas: "missing column(s): dtc",
		},
		{
			name:       "model load failure",
			err:        NewModelLoadError("model.json", fmt.Errorf("no such file")),
			category:   CategoryModelLoad,
			status:     http.StatusServiceUnavailable,
			messageHas: "MODEL_LOAD_FAILURE",
		},
		{
			name:       "invalid coefficient",
			err:        NewInvalidCoefficientError("base coefficient is not finite"),
			category:   CategoryInvalidCoefficient,
			status:     http.StatusUnprocessableEntity,
			messageHas: "INVALID_COEFFICIENT_INPUT",
		},
		{
			name:       "invalid tariff",
			err:        NewInvalidTariffError("base_tariff", -1),
			category:   CategoryInvalidTariff,
			status:     http.StatusUnprocessableEntity,
			messageHas: "base_tariff is out of range: -1",
		},
		{
			name:       "not found",
			err:        NewNotFoundError("quote", "abc"),
			category:   CategoryNotFound,
			status:     http.StatusNotFound,
			messageHas: "quote abc not found",
		},
		{
			name:       "rate limit",
			err:        NewRateLimitError("30s"),
			category:   CategoryRateLimit,
			status:     http.StatusTooManyRequests,
			messageHas: "RATE_LIMIT_EXCEEDED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.messageHas)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestModelLoadErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("unexpected end of JSON input")
	err := NewModelLoadError("model.json", cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsCategory(t *testing.T) {
	wrapped := fmt.Errorf("telemetry: %w", NewMissingColumnError("dtc"))

	assert.True(t, IsCategory(wrapped, CategoryMissingColumn))
	assert.False(t, IsCategory(wrapped, CategoryMalformedInput))
	assert.False(t, IsCategory(fmt.Errorf("plain"), CategoryMissingColumn))
	assert.False(t, IsCategory(nil, CategoryMissingColumn))
}

func TestToAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
	}{
		{"app error passes through", NewInvalidTariffError("season_coeff", 0), CategoryInvalidTariff},
		{"wrapped app error is unwrapped", fmt.Errorf("ctx: %w", NewMalformedInputError(0, "region", "is not a string")), CategoryMalformedInput},
		{"errbuilder error becomes internal", errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("boom"), CategoryInternal},
		{"deadline becomes timeout", context.DeadlineExceeded, CategoryTimeout},
		{"cancel becomes timeout", context.Canceled, CategoryTimeout},
		{"plain error becomes internal", fmt.Errorf("standard error"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.category, appErr.Category)
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestErrorHandlerWritesStructuredResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(NewInvalidTariffError("base_tariff", 0))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/fail", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"category":"invalid_tariff_input"`)
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RecoveryHandler())
	r.GET("/panic", func(c *gin.Context) {
		panic("model exploded")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"category":"internal"`)
}
