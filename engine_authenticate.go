package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/procuregov/authcore/internal/flows"
	"go.uber.org/zap"
)

// Authenticate runs the per-request pipeline for a bearer access token:
// signature and expiry, revocation list, live session, principal status.
//
// The identity carries the principal's current role from the entity store,
// so a role change takes effect on the next request. Backend failures are
// returned as [ErrAuthenticationFailed] wrapping [ErrBackendUnavailable];
// the request is never let through.
//
//	Performance: 1 Redis EXISTS + 1 Redis GET + 1 PrincipalStore lookup.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	res := flows.RunAuthenticate(ctx, token, e.flows.Authenticate)
	switch res.Failure {
	case flows.FailureNone:
	case flows.FailureBackend:
		e.metricInc(MetricAuthenticateFailure)
		e.metricInc(MetricAuthenticateBackendFailure)
		e.degraded.Log("authenticate", false, res.Err)
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, wrapCause(ErrBackendUnavailable, res.Err))
	case flows.FailureRevoked:
		e.metricInc(MetricAuthenticateFailure)
		e.metricInc(MetricAuthenticateRevoked)
		return nil, ErrRevokedCredential
	default:
		e.metricInc(MetricAuthenticateFailure)
		if res.Failure == flows.FailureNotReady {
			e.log().Error("authenticate called on an engine that is not ready")
		} else {
			e.log().Debug("authentication rejected", zap.Stringer("reason", res.Failure))
		}
		return nil, failureError(res.Failure, res.Err)
	}

	e.metricInc(MetricAuthenticateSuccess)
	id := &Identity{
		PrincipalID: res.Principal.ID,
		Role:        Role(res.Principal.Role),
		SessionID:   res.Claims.SessionID,
	}
	if res.Claims.ExpiresAt != nil {
		id.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return id, nil
}

// AuthenticateOptional is Authenticate for public endpoints that personalize
// output. Any rejection yields an anonymous caller rather than an error.
func (e *Engine) AuthenticateOptional(ctx context.Context, token string) (*Identity, bool) {
	if token == "" {
		return nil, false
	}
	id, err := e.Authenticate(ctx, token)
	if err != nil {
		return nil, false
	}
	return id, true
}
