package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procuregov/authcore/internal/rate"
	"github.com/redis/go-redis/v9"
)

// LoginGuardConfig holds the per-IP login failure policy.
type LoginGuardConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
}

var (
	// ErrGuardUnavailable indicates the guard backend is unreachable.
	ErrGuardUnavailable = errors.New("login guard backend unavailable")
)

// Verdict is the guard's view of one source IP.
type Verdict struct {
	Locked     bool
	Failures   int
	RetryAfter time.Duration
}

// LoginGuard counts failed logins per source IP in a fixed window and locks
// the IP out once the threshold is reached. Unlike a route limiter, a
// successful login clears the window early.
type LoginGuard struct {
	counter *rate.Counter
	config  LoginGuardConfig
}

// NewLoginGuard creates a guard keyed under "alf:ip:".
func NewLoginGuard(redisClient redis.UniversalClient, cfg LoginGuardConfig) *LoginGuard {
	return &LoginGuard{counter: rate.NewCounter(redisClient, "alf:"), config: cfg}
}

func (g *LoginGuard) active(ip string) bool {
	return g != nil && g.config.Enabled && ip != ""
}

func (g *LoginGuard) key(ip string) string {
	return g.counter.Key("ip", ip)
}

// CheckAllowed reports whether ip may attempt a login. It reads only.
func (g *LoginGuard) CheckAllowed(ctx context.Context, ip string) (Verdict, error) {
	if !g.active(ip) {
		return Verdict{}, nil
	}

	count, ttl, err := g.counter.Peek(ctx, g.key(ip))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrGuardUnavailable, err)
	}
	return g.verdict(count, ttl), nil
}

// RecordFailure counts one failed attempt from ip. The window starts at the
// first failure and is not extended by later ones.
func (g *LoginGuard) RecordFailure(ctx context.Context, ip string) (Verdict, error) {
	if !g.active(ip) {
		return Verdict{}, nil
	}

	count, ttl, err := g.counter.Hit(ctx, g.key(ip), g.config.Window)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrGuardUnavailable, err)
	}
	return g.verdict(count, ttl), nil
}

// Clear removes the failure counter for ip.
func (g *LoginGuard) Clear(ctx context.Context, ip string) error {
	if !g.active(ip) {
		return nil
	}
	if err := g.counter.Reset(ctx, g.key(ip)); err != nil {
		return fmt.Errorf("%w: %w", ErrGuardUnavailable, err)
	}
	return nil
}

func (g *LoginGuard) verdict(count int64, ttl time.Duration) Verdict {
	v := Verdict{Failures: int(count)}
	if count >= int64(g.config.Threshold) {
		v.Locked = true
		v.RetryAfter = ttl
	}
	return v
}
