package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// envelope carries the time a value was fetched from the provider so
// readers can apply their own freshness window.
type envelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// SaveSnapshot stores value as JSON under key with a Redis TTL, retrying
// transient failures.
func (c *Client) SaveSnapshot(ctx context.Context, key string, value interface{}, fetchedAt time.Time, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}
	payload, err := json.Marshal(envelope{FetchedAt: fetchedAt.UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", key, err)
	}

	return c.withMetrics("set", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		op := func() error {
			ctx, cancel := context.WithTimeout(ctx, opTimeout)
			defer cancel()
			err := c.rdb.Set(ctx, key, string(payload), ttl).Err()
			c.checkCircuitBreaker(err)
			return err
		}
		return retry(ctx, op)
	})
}

// LoadSnapshot decodes the value stored under key into dest. A missing key
// is reported as found == false with a nil error.
func (c *Client) LoadSnapshot(ctx context.Context, key string, dest interface{}) (time.Time, bool, error) {
	var (
		env   envelope
		found bool
	)
	err := c.withMetrics("get", func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		raw, err := c.rdb.Get(ctx, key).Result()
		c.checkCircuitBreaker(err)
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return fmt.Errorf("decode envelope %s: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return time.Time{}, false, err
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return time.Time{}, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return env.FetchedAt, true, nil
}
