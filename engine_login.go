package authcore

import (
	"context"
	"strconv"

	"github.com/procuregov/authcore/internal/flows"
	"go.uber.org/zap"
)

// Login authenticates email and password and opens a session.
//
// The caller's IP must be attached with [WithClientIP]; it keys the login
// failure guard. A locked IP is refused with [ErrLoginLocked] (wrapped in a
// [RetryAfterError]) before any credential is looked at. Wrong or unknown
// credentials count one failure and return [ErrInvalidCredentials]. A
// successful login clears the IP's failure count.
//
//	Performance: 1 guard read, 1 PrincipalStore lookup, 1 argon2id verify,
//	1 Redis SET, 1 record store write, 1 guard delete.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, flows.LoginInput{
		Email:     email,
		Password:  password,
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}, e.flows.Login)

	switch res.Failure {
	case flows.FailureNone:
	case flows.FailureLoginLocked:
		e.metricInc(MetricLoginLocked)
		err := &RetryAfterError{Err: ErrLoginLocked, After: res.RetryAfter}
		e.emitAudit(ctx, auditEventLoginLocked, false, "", "", err, func() map[string]string {
			return map[string]string{
				"failures":    strconv.Itoa(res.Failures),
				"retry_after": strconv.Itoa(int(res.RetryAfter.Seconds())),
			}
		})
		return nil, err
	case flows.FailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Principal.ID, "", ErrInvalidCredentials, func() map[string]string {
			return e.deviceMetadata(ctx, map[string]string{
				"failures": strconv.Itoa(res.Failures),
			})
		})
		return nil, ErrInvalidCredentials
	case flows.FailurePrincipalInactive:
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Principal.ID, "", ErrPrincipalInactive, func() map[string]string {
			return e.deviceMetadata(ctx, nil)
		})
		return nil, ErrPrincipalInactive
	default:
		err := failureError(res.Failure, res.Err)
		e.metricInc(MetricLoginFailure)
		e.log().Error("login failed", zap.Stringer("reason", res.Failure), zap.Error(err))
		e.emitAudit(ctx, auditEventLoginFailure, false, res.Principal.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.Principal.ID, res.Session.SessionID, nil, func() map[string]string {
		return e.deviceMetadata(ctx, map[string]string{
			"role": res.Principal.Role,
		})
	})

	return &LoginResult{
		PrincipalID:  res.Principal.ID,
		Role:         Role(res.Principal.Role),
		SessionID:    res.Session.SessionID,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    e.tokens.AccessTTL(),
	}, nil
}
