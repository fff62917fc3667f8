package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/kbm-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/kbm-risk/internal/resilience"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute       int           // requests per client IP per minute
	Burst           int           // in-memory bucket size; defaults to PerMinute
	MaxFallbackKeys int           // in-memory buckets kept before a sweep
	IdleTTL         time.Duration // idle in-memory buckets older than this are swept
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute:       120,
		MaxFallbackKeys: 10000,
		IdleTTL:         10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Backend    string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per key with Redis, falling back to in-memory token buckets
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	breaker      *resilience.CircuitBreaker
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*bucket
	fallbackMutex    sync.Mutex
}

// NewRateLimiter creates a new rate limiter. redisClient may be nil or disabled.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = DefaultConfig().PerMinute
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.MaxFallbackKeys <= 0 {
		config.MaxFallbackKeys = DefaultConfig().MaxFallbackKeys
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*bucket),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		// after repeated failures, skip Redis instead of paying its timeout on every request
		rl.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  15 * time.Second,
		})
		slog.Info("Redis rate limiter initialized", "per_minute", config.PerMinute)
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only", "per_minute", config.PerMinute)
	}

	return rl
}

// AllowIP checks if an IP address may make another request this minute
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("kbm:ratelimit:ip:%s", ip)
	return rl.allow(ctx, key, rl.config.PerMinute, time.Minute)
}

// allow checks Redis first and the in-memory buckets when Redis is off or failing
func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil {
		var result *Result
		err := rl.breaker.Call(func() error {
			var err error
			result, err = rl.allowRedis(ctx, key, limit, period)
			return err
		})
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, resilience.ErrOpen) {
			slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRedisError()
			}
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period), nil
}

// allowRedis uses the GCRA limiter of redis_rate
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	result := &Result{
		Allowed:   res.Allowed > 0,
		Limit:     res.Limit.Rate,
		Remaining: res.Remaining,
		ResetAt:   time.Now().Add(res.ResetAfter),
		Backend:   BackendRedis,
	}
	if !result.Allowed {
		result.RetryAfter = res.RetryAfter
	}
	return result, nil
}

// allowFallback uses an in-memory token bucket per key
func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) *Result {
	now := time.Now()

	rl.fallbackMutex.Lock()
	b, exists := rl.fallbackLimiters[key]
	if !exists {
		if len(rl.fallbackLimiters) >= rl.config.MaxFallbackKeys {
			rl.sweepLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(limit)/period.Seconds()), rl.config.Burst)}
		rl.fallbackLimiters[key] = b
	}
	b.lastSeen = now
	rl.fallbackMutex.Unlock()

	result := &Result{
		Limit:   limit,
		Backend: BackendMemory,
	}

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		result.RetryAfter = delay
	} else {
		result.Allowed = true
	}

	tokens := b.limiter.TokensAt(now)
	if tokens > 0 {
		result.Remaining = int(tokens)
	}

	missing := float64(rl.config.Burst) - tokens
	if missing < 0 {
		missing = 0
	}
	result.ResetAt = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))

	return result
}

// sweepLocked drops idle buckets; callers hold fallbackMutex
func (rl *RateLimiter) sweepLocked(now time.Time) {
	before := len(rl.fallbackLimiters)
	for key, b := range rl.fallbackLimiters {
		if now.Sub(b.lastSeen) > rl.config.IdleTTL {
			delete(rl.fallbackLimiters, key)
		}
	}
	// everything is recent: start over rather than grow without bound
	if len(rl.fallbackLimiters) >= rl.config.MaxFallbackKeys {
		rl.fallbackLimiters = make(map[string]*bucket)
	}
	slog.Info("Swept fallback rate limiters", "before", before, "after", len(rl.fallbackLimiters))
}

// Reset forgets the in-memory bucket of an IP and its Redis key when Redis is on
func (rl *RateLimiter) Reset(ctx context.Context, ip string) error {
	key := fmt.Sprintf("kbm:ratelimit:ip:%s", ip)

	rl.fallbackMutex.Lock()
	delete(rl.fallbackLimiters, key)
	rl.fallbackMutex.Unlock()

	if rl.redisLimiter != nil {
		return rl.redisLimiter.Reset(ctx, key)
	}
	return nil
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"per_minute":        rl.config.PerMinute,
		"fallback_limiters": fallbackCount,
		"redis_pool":        rl.redisClient.GetPoolStats(),
	}
	if rl.breaker != nil {
		stats["redis_breaker"] = rl.breaker.GetStats()
	}
	return stats
}
