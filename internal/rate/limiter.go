package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript is the only write path for counters. The window TTL is set when
// the key is created and never again, so steady traffic cannot push the
// boundary out. A key found without a TTL is given one so it cannot live
// forever.
const hitScript = `
local created = redis.call("SET", KEYS[1], "1", "PX", ARGV[1], "NX")
local count = 1
if not created then
  count = redis.call("INCR", KEYS[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// Decision is the outcome of one TryAcquire call. It is populated for
// allowed and denied calls alike.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Count      int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Counter implements fixed-window counting on Redis.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewCounter creates a [Counter]. prefix namespaces every key it touches.
func NewCounter(rdb redis.UniversalClient, prefix string) *Counter {
	if prefix == "" {
		prefix = "arl:"
	}
	return &Counter{redis: rdb, prefix: prefix, now: time.Now}
}

// WithClock replaces the clock used to compute ResetAt.
func (c *Counter) WithClock(now func() time.Time) *Counter {
	if now != nil {
		c.now = now
	}
	return c
}

// Key returns the Redis key for (scope, identifier).
func (c *Counter) Key(scope, identifier string) string {
	return c.prefix + scope + ":" + identifier
}

// TryAcquire counts one event for (scope, identifier) and reports whether it
// fits within limit for the current window. Concurrent calls on one key are
// linearized by Redis.
//
//	Performance: 1 Lua EVALSHA.
func (c *Counter) TryAcquire(ctx context.Context, scope, identifier string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window < time.Millisecond || scope == "" || identifier == "" {
		return Decision{}, ErrInvalidArgument
	}

	count, ttl, err := c.Hit(ctx, c.Key(scope, identifier), window)
	if err != nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, err
	}

	d := Decision{
		Allowed: count <= int64(limit),
		Limit:   limit,
		Count:   count,
		ResetAt: c.now().Add(ttl),
	}
	if remaining := int64(limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Hit atomically creates key with count 1 and TTL window, or increments it
// without touching the TTL. It returns the new count and the time left in
// the window.
func (c *Counter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window < time.Millisecond {
		return 0, 0, ErrInvalidArgument
	}
	res, err := hitLua.Run(ctx, c.redis, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid counter script response", ErrRedisUnavailable)
	}
	count, ok1 := parts[0].(int64)
	ttlMS, ok2 := parts[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("%w: invalid counter script values", ErrRedisUnavailable)
	}

	return count, time.Duration(ttlMS) * time.Millisecond, nil
}

// Peek reads the current count and remaining window for key without
// counting. A missing key yields (0, 0, nil).
func (c *Counter) Peek(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := c.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// Reset deletes key, ending its window early.
func (c *Counter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
