package flows

import (
	"context"
	"time"

	"github.com/procuregov/authcore/internal/limiters"
	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/session"
)

// LoginInput is the flow-local login request.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	CheckGuard    func(context.Context, string) (limiters.Verdict, error)
	RecordFailure func(context.Context, string) (limiters.Verdict, error)
	ClearGuard    func(context.Context, string) error

	NormalizeEmail       func(string) string
	FindPrincipalByEmail func(context.Context, string) (PrincipalRecord, error)
	PrincipalNotFound    error

	VerifyPassword func(plain, encoded string) (bool, error)
	// DummyHash is verified against when the email is unknown so both paths
	// cost one password verification.
	DummyHash string

	CreateSession func(ctx context.Context, principalID, role, ip, userAgent string) (*session.Session, error)
	BindSession   func(context.Context, *session.Session, string) error
	DeleteSession func(context.Context, string) error
	IssueAccess   func(jwt.Subject) (string, error)
	IssueRefresh  func(jwt.Subject) (string, error)

	// OnDegraded is told about guard outages the flow chose to tolerate.
	OnDegraded func(ctx context.Context, component string, err error)
}

// LoginResult is the flow-local login response.
type LoginResult struct {
	Failure      FailureKind
	Err          error
	RetryAfter   time.Duration
	Failures     int
	Principal    PrincipalRecord
	Session      *session.Session
	AccessToken  string
	RefreshToken string
}

// RunLogin checks the per-IP guard before anything else, so a locked IP is
// refused without touching credentials. Only wrong credentials count as
// failures; an inactive principal with the right password does not.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	if deps.FindPrincipalByEmail == nil || deps.VerifyPassword == nil ||
		deps.CreateSession == nil || deps.BindSession == nil || deps.DeleteSession == nil ||
		deps.IssueAccess == nil || deps.IssueRefresh == nil {
		return LoginResult{Failure: FailureNotReady}
	}
	if deps.OnDegraded == nil {
		deps.OnDegraded = degradedNoop
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = func(s string) string { return s }
	}

	if deps.CheckGuard != nil {
		verdict, err := deps.CheckGuard(ctx, in.IP)
		if err != nil {
			deps.OnDegraded(ctx, "login_guard", err)
		} else if verdict.Locked {
			return LoginResult{Failure: FailureLoginLocked, RetryAfter: verdict.RetryAfter, Failures: verdict.Failures}
		}
	}

	email := deps.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return recordLoginFailure(ctx, in.IP, deps)
	}

	principal, err := deps.FindPrincipalByEmail(ctx, email)
	if err != nil {
		if isNotFound(err, deps.PrincipalNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(in.Password, deps.DummyHash)
			}
			return recordLoginFailure(ctx, in.IP, deps)
		}
		return LoginResult{Failure: FailureBackend, Err: err}
	}

	ok, err := deps.VerifyPassword(in.Password, principal.PasswordHash)
	if err != nil {
		return LoginResult{Failure: FailureBackend, Err: err}
	}
	if !ok {
		res := recordLoginFailure(ctx, in.IP, deps)
		res.Principal = principal
		return res
	}

	if !principal.Active {
		return LoginResult{Failure: FailurePrincipalInactive, Principal: principal}
	}

	sess, err := deps.CreateSession(ctx, principal.ID, principal.Role, in.IP, in.UserAgent)
	if err != nil {
		return LoginResult{Failure: FailureBackend, Err: err, Principal: principal}
	}

	sub := jwt.Subject{PrincipalID: principal.ID, Role: principal.Role, SessionID: sess.SessionID}
	access, err := deps.IssueAccess(sub)
	if err != nil {
		_ = deps.DeleteSession(ctx, sess.SessionID)
		return LoginResult{Failure: FailureSigning, Err: err, Principal: principal}
	}
	refresh, err := deps.IssueRefresh(sub)
	if err != nil {
		_ = deps.DeleteSession(ctx, sess.SessionID)
		return LoginResult{Failure: FailureSigning, Err: err, Principal: principal}
	}
	if err := deps.BindSession(ctx, sess, refresh); err != nil {
		_ = deps.DeleteSession(ctx, sess.SessionID)
		return LoginResult{Failure: FailureBackend, Err: err, Principal: principal}
	}

	if deps.ClearGuard != nil {
		if err := deps.ClearGuard(ctx, in.IP); err != nil {
			deps.OnDegraded(ctx, "login_guard", err)
		}
	}

	return LoginResult{
		Principal:    principal,
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}

func recordLoginFailure(ctx context.Context, ip string, deps LoginDeps) LoginResult {
	res := LoginResult{Failure: FailureInvalidCredentials}
	if deps.RecordFailure == nil {
		return res
	}
	verdict, err := deps.RecordFailure(ctx, ip)
	if err != nil {
		deps.OnDegraded(ctx, "login_guard", err)
		return res
	}
	res.Failures = verdict.Failures
	return res
}
