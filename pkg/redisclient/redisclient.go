package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen

	failureThreshold = 5
	breakerCooldown  = 30 * time.Second
	opTimeout        = 200 * time.Millisecond
)

type Client struct {
	rdb *redis.Client
	// Circuit breaker state
	failureCount int64
	lastFailure  int64
	state        int32
}

// New constructs a Client with sensible defaults & retry logic
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.MaxRetries = 1
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second
	opt.IdleTimeout = 5 * time.Minute
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// allow reports whether a call may go through. An open breaker lets one
// probe through after the cooldown.
func (c *Client) allow() bool {
	if atomic.LoadInt32(&c.state) != stateOpen {
		return true
	}
	last := time.Unix(atomic.LoadInt64(&c.lastFailure), 0)
	if time.Since(last) < breakerCooldown {
		return false
	}
	return atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
}

// checkCircuitBreaker records the outcome of one call.
func (c *Client) checkCircuitBreaker(err error) {
	if err != nil && err != redis.Nil {
		n := atomic.AddInt64(&c.failureCount, 1)
		atomic.StoreInt64(&c.lastFailure, time.Now().Unix())
		if n >= failureThreshold || atomic.LoadInt32(&c.state) == stateHalfOpen {
			if atomic.SwapInt32(&c.state, stateOpen) != stateOpen {
				logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"))
			}
		}
		return
	}
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, stateClosed)
}

// Ping checks connectivity for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.withMetrics("ping", func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// retry runs op with exponential backoff, at most three retries.
func retry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, bo)
}
