package authcore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TryAcquire counts one event against the fixed window for (scope,
// identifier) and reports whether it fits within limit.
//
// The window starts at the first event and is never extended by later
// ones. If the counter backend is unreachable the event is allowed and the
// decision is marked Degraded.
//
//	Performance: 1 Redis EVALSHA.
func (e *Engine) TryAcquire(ctx context.Context, scope, identifier string, limit int, window time.Duration) RateDecision {
	if e == nil || e.counter == nil {
		return RateDecision{Allowed: true, Limit: limit, Remaining: limit, Degraded: true}
	}

	callCtx, cancel := e.bounded(ctx)
	defer cancel()

	d, err := e.counter.TryAcquire(callCtx, scope, identifier, limit, window)
	if err != nil {
		e.metricInc(MetricRateLimitDegraded)
		e.degraded.Log("rate_limit", true, err,
			zap.String("scope", scope),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
		e.emitAudit(ctx, auditEventDegraded, false, "", "", wrapCause(ErrBackendUnavailable, err), func() map[string]string {
			return map[string]string{"component": "rate_limit", "scope": scope}
		})
		return RateDecision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   time.Now().Add(window),
			Degraded:  true,
		}
	}

	out := RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		ResetAt:    d.ResetAt,
		RetryAfter: d.RetryAfter,
	}
	if !d.Allowed {
		e.metricInc(MetricRateLimitDenied)
		e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{
				"scope":      scope,
				"identifier": identifier,
				"count":      strconv.FormatInt(d.Count, 10),
				"limit":      strconv.Itoa(limit),
			}
		})
		return out
	}
	e.metricInc(MetricRateLimitAllowed)
	return out
}
