package authcore

import (
	"context"

	"github.com/procuregov/authcore/internal/flows"
	"go.uber.org/zap"
)

// Logout revokes accessToken until its own expiry and deletes its session,
// so the access token and every refresh token of that session stop working
// at once. Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, accessToken, e.flows.Logout)

	var principalID, sessionID string
	if res.Claims != nil {
		principalID, sessionID = res.Claims.PrincipalID, res.Claims.SessionID
	}

	if res.Failure != flows.FailureNone {
		err := failureError(res.Failure, res.Err)
		if res.Failure == flows.FailureBackend {
			e.log().Error("logout incomplete", zap.String("session_id", sessionID), zap.Error(err))
		}
		e.emitAudit(ctx, auditEventLogout, false, principalID, sessionID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, principalID, sessionID, nil, nil)
	return nil
}
