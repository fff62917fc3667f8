package config

import (
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "models/kbm_risk.json", cfg.ModelPath)
	assert.Empty(t, cfg.TelemetryDir)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 0.3, cfg.KBMAvgProba)
	assert.Equal(t, 1.5, cfg.KBMBeta)
	assert.Equal(t, 1.8, cfg.UnlimitedDriversCoeff)
	assert.Equal(t, 2000.0, cfg.DefaultBaseTariff)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, "always", cfg.TraceSampling)
	assert.Equal(t, filepath.Join("data", "quotes.db"), cfg.QuoteDBPath())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":                    "9090",
		"GIN_MODE":                "debug",
		"LOG_LEVEL":               "debug",
		"TELEMETRY_DIR":           "/var/lib/kbm/obd",
		"REDIS_ADDR":              "localhost:6379",
		"REDIS_DB":                "2",
		"ALLOWED_ORIGINS":         "https://a.example,https://b.example",
		"ENABLE_HSTS":             "true",
		"KBM_BETA":                "2",
		"UNLIMITED_DRIVERS_COEFF": "2.1",
		"CACHE_TTL":               "90s",
		"TRACE_SAMPLING":          "probability",
		"TRACE_SAMPLE_RATE":       "0.25",
	})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.GinMode)
	assert.Equal(t, "/var/lib/kbm/obd", cfg.TelemetryDir)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.EnableHSTS)
	assert.Equal(t, 2.0, cfg.KBMBeta)
	assert.Equal(t, 2.1, cfg.UnlimitedDriversCoeff)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "probability", cfg.TraceSampling)
	assert.Equal(t, 0.25, cfg.TraceSampleRate)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		message string
	}{
		{"unparsable number", map[string]string{"REDIS_DB": "two"}, ""},
		{"unparsable duration", map[string]string{"CACHE_TTL": "soon"}, ""},
		{"bad gin mode", map[string]string{"GIN_MODE": "prod"}, "GIN_MODE"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "log level"},
		{"average probability out of range", map[string]string{"KBM_AVG_PROBA": "1.2"}, "KBM_AVG_PROBA"},
		{"zero beta", map[string]string{"KBM_BETA": "0"}, "KBM_BETA"},
		{"negative tariff", map[string]string{"DEFAULT_BASE_TARIFF": "-1"}, "DEFAULT_BASE_TARIFF"},
		{"zero concurrency", map[string]string{"BATCH_CONCURRENCY": "0"}, "BATCH_CONCURRENCY"},
		{"zero rate limit", map[string]string{"RATE_LIMIT_PER_MIN": "0"}, "RATE_LIMIT_PER_MIN"},
		{"empty model path", map[string]string{"MODEL_PATH": " "}, "MODEL_PATH"},
		{"unknown sampling", map[string]string{"TRACE_SAMPLING": "sometimes"}, "TRACE_SAMPLING"},
		{"sample rate above one", map[string]string{"TRACE_SAMPLE_RATE": "1.5"}, "TRACE_SAMPLE_RATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}
