package revocation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/procuregov/authcore/internal"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps backend failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config bounds entry lifetimes.
//
// MaxTTL is the longest lifetime a token of the revoked kind can have (the
// access token TTL). Leeway is the verifier's clock tolerance; entries
// outlive the token's exp by that much so a token still accepted under
// leeway is still denied.
type Config struct {
	Prefix string
	MaxTTL time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

// List is a Redis-backed deny-list of access tokens. Keys hold the SHA-256 of
// the token, never the token itself, and always carry a TTL.
type List struct {
	redis  redis.UniversalClient
	prefix string
	maxTTL time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewList validates cfg and returns a [List].
func NewList(rdb redis.UniversalClient, cfg Config) (*List, error) {
	if cfg.MaxTTL <= 0 {
		return nil, errors.New("revocation MaxTTL must be > 0")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("revocation leeway must be >= 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "arv:"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &List{
		redis:  rdb,
		prefix: cfg.Prefix,
		maxTTL: cfg.MaxTTL,
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}, nil
}

func (l *List) key(token string) string {
	sum := internal.HashToken(token)
	return l.prefix + hex.EncodeToString(sum[:])
}

// Add revokes token for its remaining lifetime plus leeway. A remaining of
// zero or less means "unknown" and falls back to the maximum token lifetime.
func (l *List) Add(ctx context.Context, token string, remaining time.Duration) error {
	ttl := l.maxTTL + l.leeway
	if remaining > 0 {
		ttl = l.capped(remaining + l.leeway)
	}
	return l.set(ctx, token, ttl)
}

// AddUntil revokes token until its own exp (plus leeway). A token already
// past that point cannot verify anyway and is not stored. A zero exp uses
// the same fallback as Add.
func (l *List) AddUntil(ctx context.Context, token string, exp time.Time) error {
	if exp.IsZero() {
		return l.Add(ctx, token, 0)
	}
	ttl := exp.Sub(l.now()) + l.leeway
	if ttl <= 0 {
		return nil
	}
	return l.set(ctx, token, l.capped(ttl))
}

// Contains reports whether token is currently revoked.
//
//	Performance: 1 Redis EXISTS.
func (l *List) Contains(ctx context.Context, token string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func (l *List) capped(ttl time.Duration) time.Duration {
	if limit := l.maxTTL + l.leeway; ttl > limit {
		return limit
	}
	return ttl
}

func (l *List) set(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := l.redis.Set(ctx, l.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
