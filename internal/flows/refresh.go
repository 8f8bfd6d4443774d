package flows

import (
	"context"
	"errors"

	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/session"
)

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	VerifyRefresh     func(string) (*jwt.Claims, error)
	MatchesRefresh    func(ctx context.Context, sessionID, token string) (session.Record, error)
	GetSession        func(context.Context, string) (*session.Session, error)
	RestoreSession    func(ctx context.Context, rec session.Record, role string) error
	DeleteSession     func(context.Context, string) error
	FindPrincipal     PrincipalLookup
	PrincipalNotFound error
	IssueAccess       func(jwt.Subject) (string, error)

	// Rotate enables refresh token rotation on use.
	Rotate        bool
	IssueRefresh  func(jwt.Subject) (string, error)
	RotateRefresh func(ctx context.Context, sessionID, presented, next string) error
}

// RefreshResult is the flow-local refresh response. RefreshToken is set only
// when rotation is enabled.
type RefreshResult struct {
	Failure      FailureKind
	Err          error
	Claims       *jwt.Claims
	Principal    PrincipalRecord
	AccessToken  string
	RefreshToken string
	Restored     bool
}

// RunRefresh decides validity against the durable record, then makes sure
// the cache record exists before minting a new access token.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) RefreshResult {
	if deps.VerifyRefresh == nil || deps.MatchesRefresh == nil || deps.GetSession == nil ||
		deps.RestoreSession == nil || deps.DeleteSession == nil || deps.FindPrincipal == nil ||
		deps.IssueAccess == nil {
		return RefreshResult{Failure: FailureNotReady}
	}
	if deps.Rotate && (deps.IssueRefresh == nil || deps.RotateRefresh == nil) {
		return RefreshResult{Failure: FailureNotReady}
	}
	if token == "" {
		return RefreshResult{Failure: FailureMissingCredential}
	}

	claims, err := deps.VerifyRefresh(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RefreshResult{Failure: FailureExpired, Err: err}
		}
		return RefreshResult{Failure: FailureMalformed, Err: err}
	}
	sid := claims.SessionID

	rec, err := deps.MatchesRefresh(ctx, sid, token)
	if err != nil {
		return RefreshResult{Failure: classifySessionErr(err), Err: err, Claims: claims}
	}
	if rec.PrincipalID != claims.PrincipalID {
		_ = deps.DeleteSession(ctx, sid)
		return RefreshResult{Failure: FailureTokenMismatch, Claims: claims}
	}

	principal, err := deps.FindPrincipal(ctx, claims.PrincipalID)
	if err != nil && !isNotFound(err, deps.PrincipalNotFound) {
		return RefreshResult{Failure: FailureBackend, Err: err, Claims: claims}
	}
	if err != nil || !principal.Active {
		_ = deps.DeleteSession(ctx, sid)
		return RefreshResult{Failure: FailurePrincipalInactive, Err: err, Claims: claims, Principal: principal}
	}

	res := RefreshResult{Claims: claims, Principal: principal}
	if _, err := deps.GetSession(ctx, sid); err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			return RefreshResult{Failure: classifySessionErr(err), Err: err, Claims: claims}
		}
		if err := deps.RestoreSession(ctx, rec, principal.Role); err != nil {
			return RefreshResult{Failure: classifySessionErr(err), Err: err, Claims: claims}
		}
		res.Restored = true
	}

	sub := jwt.Subject{PrincipalID: principal.ID, Role: principal.Role, SessionID: sid}
	res.AccessToken, err = deps.IssueAccess(sub)
	if err != nil {
		return RefreshResult{Failure: FailureSigning, Err: err, Claims: claims}
	}

	if deps.Rotate {
		next, err := deps.IssueRefresh(sub)
		if err != nil {
			return RefreshResult{Failure: FailureSigning, Err: err, Claims: claims}
		}
		if err := deps.RotateRefresh(ctx, sid, token, next); err != nil {
			return RefreshResult{Failure: classifySessionErr(err), Err: err, Claims: claims}
		}
		res.RefreshToken = next
	}

	return res
}

func classifySessionErr(err error) FailureKind {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return FailureSessionExpired
	case errors.Is(err, session.ErrRefreshHashMismatch):
		return FailureTokenMismatch
	case errors.Is(err, session.ErrSessionNotFound):
		return FailureSessionNotFound
	default:
		return FailureBackend
	}
}
