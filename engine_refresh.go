package authcore

import (
	"context"

	"github.com/procuregov/authcore/internal/flows"
	"go.uber.org/zap"
)

// Refresh exchanges a refresh token for a new access token.
//
// Validity is decided against the durable session record: a deleted session
// yields [ErrSessionNotFound], an expired one [ErrSessionExpired], and a
// token that is not the one bound to the session [ErrTokenMismatch]. The
// last two also delete the session. When the cache record was lost but the
// durable record is valid, the cache record is rebuilt.
//
// With Session.RotateRefreshOnUse the result also carries a new refresh
// token and the presented one stops working.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	var principalID, sessionID string
	if res.Claims != nil {
		principalID, sessionID = res.Claims.PrincipalID, res.Claims.SessionID
	}

	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err)
		e.metricInc(MetricRefreshFailure)
		switch res.Failure {
		case flows.FailureTokenMismatch:
			e.metricInc(MetricTokenMismatch)
			e.metricInc(MetricSessionInvalidated)
			e.log().Warn("refresh token mismatch, session revoked",
				zap.String("principal_id", principalID),
				zap.String("session_id", sessionID),
			)
			e.emitAudit(ctx, auditEventRefreshMismatch, false, principalID, sessionID, err, nil)
		case flows.FailureBackend, flows.FailureSigning, flows.FailureNotReady:
			e.log().Error("refresh failed", zap.Stringer("reason", res.Failure), zap.Error(err))
			e.emitAudit(ctx, auditEventRefreshFailure, false, principalID, sessionID, err, nil)
		default:
			e.emitAudit(ctx, auditEventRefreshFailure, false, principalID, sessionID, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	if res.Restored {
		e.metricInc(MetricRefreshRestored)
	}
	e.emitAudit(ctx, auditEventRefreshSuccess, true, principalID, sessionID, nil, func() map[string]string {
		if !res.Restored && res.RefreshToken == "" {
			return nil
		}
		md := map[string]string{}
		if res.Restored {
			md["cache_restored"] = "true"
		}
		if res.RefreshToken != "" {
			md["rotated"] = "true"
		}
		return md
	})

	return &RefreshResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    e.tokens.AccessTTL(),
	}, nil
}
