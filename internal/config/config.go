// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/kbm-risk/internal/errors"
	"github.com/ZanzyTHEbar/kbm-risk/internal/monitoring"
)

// Config holds every runtime setting of the quoting service
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ModelPath    string `env:"MODEL_PATH" envDefault:"models/kbm_risk.json"`
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	TelemetryDir string `env:"TELEMETRY_DIR"`

	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RateLimitPerMin int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`

	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	EnableHSTS     bool          `env:"ENABLE_HSTS" envDefault:"false"`

	KBMAvgProba           float64 `env:"KBM_AVG_PROBA" envDefault:"0.3"`
	KBMBeta               float64 `env:"KBM_BETA" envDefault:"1.5"`
	UnlimitedDriversCoeff float64 `env:"UNLIMITED_DRIVERS_COEFF" envDefault:"1.8"`
	DefaultBaseTariff     float64 `env:"DEFAULT_BASE_TARIFF" envDefault:"2000"`

	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"8"`
	MaxBatchSize     int           `env:"MAX_BATCH_SIZE" envDefault:"500"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampling   string  `env:"TRACE_SAMPLING" envDefault:"always"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
}

// Load parses the process environment
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	var problems []string

	if c.Port == "" {
		problems = append(problems, "PORT is empty")
	}
	switch c.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		problems = append(problems, fmt.Sprintf("GIN_MODE %q is not debug, release or test", c.GinMode))
	}
	if _, err := monitoring.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		problems = append(problems, "MODEL_PATH is empty")
	}
	if c.RateLimitPerMin <= 0 {
		problems = append(problems, "RATE_LIMIT_PER_MIN must be positive")
	}
	if c.CacheTTL < 0 {
		problems = append(problems, "CACHE_TTL must not be negative")
	}
	if c.KBMAvgProba <= 0 || c.KBMAvgProba >= 1 {
		problems = append(problems, "KBM_AVG_PROBA must lie in (0, 1)")
	}
	if c.KBMBeta <= 0 {
		problems = append(problems, "KBM_BETA must be positive")
	}
	if c.UnlimitedDriversCoeff <= 0 {
		problems = append(problems, "UNLIMITED_DRIVERS_COEFF must be positive")
	}
	if c.DefaultBaseTariff <= 0 {
		problems = append(problems, "DEFAULT_BASE_TARIFF must be positive")
	}
	if c.BatchConcurrency < 1 {
		problems = append(problems, "BATCH_CONCURRENCY must be at least 1")
	}
	if c.MaxBatchSize < 1 {
		problems = append(problems, "MAX_BATCH_SIZE must be at least 1")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.TraceSampling {
	case "always", "never", "probability":
	default:
		problems = append(problems, fmt.Sprintf("TRACE_SAMPLING %q is not always, never or probability", c.TraceSampling))
	}
	if c.TraceSampleRate <= 0 || c.TraceSampleRate > 1 {
		problems = append(problems, "TRACE_SAMPLE_RATE must lie in (0, 1]")
	}

	if len(problems) > 0 {
		return apperrors.NewConfigurationError(strings.Join(problems, "; "), nil)
	}
	return nil
}

// QuoteDBPath is where issued quotes are stored
func (c *Config) QuoteDBPath() string {
	return filepath.Join(c.DataDir, "quotes.db")
}
