package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/procuregov/authcore/internal"
	"github.com/procuregov/authcore/internal/flows"
	"github.com/procuregov/authcore/internal/limiters"
	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/password"
	"github.com/procuregov/authcore/session"
	"go.uber.org/zap"
)

// buildFlows binds the flow dependency sets to this engine's backends. Every
// closure that reaches Redis or a store runs under Backend.Timeout.
func (e *Engine) buildFlows() flows.Deps {
	verifyAccess := func(token string) (*jwt.Claims, error) {
		return e.tokens.Verify(token, jwt.KindAccess)
	}
	getSession := func(ctx context.Context, id string) (*session.Session, error) {
		ctx, cancel := e.bounded(ctx)
		defer cancel()
		return e.sessions.Get(ctx, id)
	}
	deleteSession := func(ctx context.Context, id string) error {
		ctx, cancel := e.bounded(ctx)
		defer cancel()
		return e.sessions.Delete(ctx, id)
	}
	findPrincipal := func(ctx context.Context, id string) (flows.PrincipalRecord, error) {
		ctx, cancel := e.bounded(ctx)
		defer cancel()
		p, err := e.principals.FindPrincipalByID(ctx, id)
		if err != nil {
			return flows.PrincipalRecord{}, err
		}
		return principalRecord(p), nil
	}

	return flows.Deps{
		Authenticate: flows.AuthenticateDeps{
			VerifyAccess: verifyAccess,
			IsRevoked: func(ctx context.Context, token string) (bool, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.revocations.Contains(ctx, token)
			},
			GetSession:        getSession,
			FindPrincipal:     findPrincipal,
			PrincipalNotFound: ErrPrincipalNotFound,
		},
		Login: flows.LoginDeps{
			CheckGuard: func(ctx context.Context, ip string) (limiters.Verdict, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.guard.CheckAllowed(ctx, ip)
			},
			RecordFailure: func(ctx context.Context, ip string) (limiters.Verdict, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.guard.RecordFailure(ctx, ip)
			},
			ClearGuard: func(ctx context.Context, ip string) error {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.guard.Clear(ctx, ip)
			},
			NormalizeEmail: internal.NormalizeEmail,
			FindPrincipalByEmail: func(ctx context.Context, email string) (flows.PrincipalRecord, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				p, err := e.principals.FindPrincipalByEmail(ctx, email)
				if err != nil {
					return flows.PrincipalRecord{}, err
				}
				return principalRecord(p), nil
			},
			PrincipalNotFound: ErrPrincipalNotFound,
			VerifyPassword:    e.verifyPassword,
			DummyHash:         e.passwordHash.DummyHash(),
			CreateSession: func(ctx context.Context, principalID, role, ip, userAgent string) (*session.Session, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.sessions.Create(ctx, principalID, role, ip, userAgent)
			},
			BindSession: func(ctx context.Context, s *session.Session, refreshToken string) error {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.sessions.Bind(ctx, s, refreshToken)
			},
			DeleteSession: deleteSession,
			IssueAccess:   e.tokens.IssueAccess,
			IssueRefresh:  e.tokens.IssueRefresh,
			OnDegraded: func(ctx context.Context, component string, err error) {
				e.metricInc(MetricLoginGuardDegraded)
				e.degraded.Log(component, true, err, zap.String("ip", ClientIPFromContext(ctx)))
			},
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: func(token string) (*jwt.Claims, error) {
				return e.tokens.Verify(token, jwt.KindRefresh)
			},
			MatchesRefresh: func(ctx context.Context, sessionID, token string) (session.Record, error) {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.sessions.MatchesRefresh(ctx, sessionID, token)
			},
			GetSession: getSession,
			RestoreSession: func(ctx context.Context, rec session.Record, role string) error {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.sessions.Restore(ctx, rec, role)
			},
			DeleteSession:     deleteSession,
			FindPrincipal:     findPrincipal,
			PrincipalNotFound: ErrPrincipalNotFound,
			IssueAccess:       e.tokens.IssueAccess,
			Rotate:            e.config.Session.RotateRefreshOnUse,
			IssueRefresh:      e.tokens.IssueRefresh,
			RotateRefresh: func(ctx context.Context, sessionID, presented, next string) error {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.sessions.RotateRefresh(ctx, sessionID, presented, next)
			},
		},
		Logout: flows.LogoutDeps{
			VerifyAccess: verifyAccess,
			RevokeUntil: func(ctx context.Context, token string, exp time.Time) error {
				ctx, cancel := e.bounded(ctx)
				defer cancel()
				return e.revocations.AddUntil(ctx, token, exp)
			},
			DeleteSession: deleteSession,
		},
	}
}

// verifyPassword treats an unreadable stored hash as a mismatch so a corrupt
// row cannot be told apart from a wrong password by the caller.
func (e *Engine) verifyPassword(plain, encoded string) (bool, error) {
	ok, err := e.passwordHash.Verify(plain, encoded)
	if errors.Is(err, password.ErrInvalidHash) {
		e.log().Error("stored password hash is unreadable", zap.Error(err))
		return false, nil
	}
	return ok, err
}
