package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend states reported by Status
const (
	StatusDisabled    = "disabled"
	StatusOK          = "ok"
	StatusUnreachable = "unreachable"
)

// RedisOptions configures the shared store behind per-IP quote limits
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	// IOTimeout bounds each limiter round trip; quote requests wait on it
	IOTimeout time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 2 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 500 * time.Millisecond
	}
	return o
}

// RedisClient is the optional shared limiter backend. When it is disabled every
// instance limits from its own in-memory buckets.
type RedisClient struct {
	client *redis.Client
	addr   string
}

// Disabled returns a backend that always defers to the in-memory limiter
func Disabled() *RedisClient {
	return &RedisClient{}
}

// NewRedisClient connects to opts.Addr. An empty address disables the backend without
// error. An unreachable server yields a disabled backend together with the error.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.Addr == "" {
		return Disabled(), nil
	}
	opts = opts.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   1,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.IOTimeout,
		WriteTimeout: opts.IOTimeout,
		PoolTimeout:  opts.IOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return Disabled(), fmt.Errorf("rate limit store %s unreachable: %w", opts.Addr, err)
	}

	return &RedisClient{client: client, addr: opts.Addr}, nil
}

// GetClient returns the underlying client, nil when disabled
func (r *RedisClient) GetClient() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// IsEnabled reports whether limits are shared through Redis
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.client != nil
}

// Status reports the backend state for the health endpoint
func (r *RedisClient) Status(ctx context.Context) string {
	if !r.IsEnabled() {
		return StatusDisabled
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return StatusUnreachable
	}
	return StatusOK
}

// Close releases the connection pool
func (r *RedisClient) Close() error {
	if !r.IsEnabled() {
		return nil
	}
	return r.client.Close()
}

// GetPoolStats returns connection pool counters for /metrics
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() {
		return map[string]interface{}{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
}
