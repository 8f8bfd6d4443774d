package flows

import (
	"context"
	"errors"

	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/session"
)

// AuthenticateDeps captures the per-request pipeline dependencies.
type AuthenticateDeps struct {
	VerifyAccess      func(string) (*jwt.Claims, error)
	IsRevoked         func(context.Context, string) (bool, error)
	GetSession        func(context.Context, string) (*session.Session, error)
	FindPrincipal     PrincipalLookup
	PrincipalNotFound error
}

// AuthenticateResult carries either the authorized identity material or a
// classified failure.
type AuthenticateResult struct {
	Failure   FailureKind
	Err       error
	Claims    *jwt.Claims
	Session   *session.Session
	Principal PrincipalRecord
}

// RunAuthenticate walks NoCredential → CredentialPresent → SignatureValid →
// NotRevoked → SessionLive → PrincipalActive → Authorized. The first failed
// transition ends the run. Backend errors at any step fail closed.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	if deps.VerifyAccess == nil || deps.IsRevoked == nil || deps.GetSession == nil || deps.FindPrincipal == nil {
		return AuthenticateResult{Failure: FailureNotReady}
	}
	if token == "" {
		return AuthenticateResult{Failure: FailureMissingCredential}
	}

	claims, err := deps.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return AuthenticateResult{Failure: FailureExpired, Err: err}
		}
		return AuthenticateResult{Failure: FailureMalformed, Err: err}
	}

	revoked, err := deps.IsRevoked(ctx, token)
	if err != nil {
		return AuthenticateResult{Failure: FailureBackend, Err: err, Claims: claims}
	}
	if revoked {
		return AuthenticateResult{Failure: FailureRevoked, Claims: claims}
	}

	sess, err := deps.GetSession(ctx, claims.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			return AuthenticateResult{Failure: FailureSessionExpired, Err: err, Claims: claims}
		case errors.Is(err, session.ErrSessionNotFound):
			return AuthenticateResult{Failure: FailureSessionNotFound, Err: err, Claims: claims}
		default:
			return AuthenticateResult{Failure: FailureBackend, Err: err, Claims: claims}
		}
	}
	if sess.PrincipalID != claims.PrincipalID {
		return AuthenticateResult{Failure: FailureSessionNotFound, Claims: claims}
	}

	principal, err := deps.FindPrincipal(ctx, claims.PrincipalID)
	if err != nil {
		if isNotFound(err, deps.PrincipalNotFound) {
			return AuthenticateResult{Failure: FailurePrincipalInactive, Err: err, Claims: claims, Session: sess}
		}
		return AuthenticateResult{Failure: FailureBackend, Err: err, Claims: claims, Session: sess}
	}
	if !principal.Active {
		return AuthenticateResult{Failure: FailurePrincipalInactive, Claims: claims, Session: sess, Principal: principal}
	}

	return AuthenticateResult{Claims: claims, Session: sess, Principal: principal}
}
