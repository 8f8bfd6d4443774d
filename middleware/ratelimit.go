package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/procuregov/authcore"
)

// Limiter is the part of the engine the rate-limit middleware needs.
type Limiter interface {
	TryAcquire(ctx context.Context, scope, identifier string, limit int, window time.Duration) authcore.RateDecision
}

// KeyFunc picks the identifier a request is counted under. An empty result
// skips counting for that request.
type KeyFunc func(r *http.Request) string

type rateLimitOptions struct {
	key KeyFunc
}

// RateLimitOption customizes [RateLimit].
type RateLimitOption func(*rateLimitOptions)

// KeyByClientIP counts requests per client IP. This is the default.
func KeyByClientIP() RateLimitOption {
	return func(o *rateLimitOptions) { o.key = clientIPKey }
}

// KeyByPrincipal counts requests per authenticated principal and falls back
// to the client IP for anonymous requests. Place it after [Authenticate] or
// [AuthenticateOptional].
func KeyByPrincipal() RateLimitOption {
	return func(o *rateLimitOptions) {
		o.key = func(r *http.Request) string {
			if id, ok := authcore.IdentityFromContext(r.Context()); ok {
				return "principal:" + id.PrincipalID
			}
			return clientIPKey(r)
		}
	}
}

// KeyBy counts requests under a caller-supplied identifier.
func KeyBy(fn KeyFunc) RateLimitOption {
	return func(o *rateLimitOptions) { o.key = fn }
}

// RateLimit admits at most limit requests per window for each identifier
// under scope. Every counted response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset (unix seconds). A denied
// request gets 429 with Retry-After. When the counter backend is down the
// request is let through.
func RateLimit(engine Limiter, scope string, limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	o := rateLimitOptions{key: clientIPKey}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			identifier := o.key(r)
			if identifier == "" {
				next.ServeHTTP(w, r)
				return
			}

			d := engine.TryAcquire(r.Context(), scope, identifier, limit, window)
			if !d.Degraded {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}
			if !d.Allowed {
				WriteError(w, &authcore.RetryAfterError{Err: authcore.ErrRateLimited, After: d.RetryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPKey(r *http.Request) string {
	if ip := authcore.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	ip, _ := parseIPCandidate(r.RemoteAddr)
	return ip
}
