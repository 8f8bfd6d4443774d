package flows

import (
	"context"
	"errors"
	"time"

	"github.com/procuregov/authcore/jwt"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	VerifyAccess  func(string) (*jwt.Claims, error)
	RevokeUntil   func(ctx context.Context, token string, exp time.Time) error
	DeleteSession func(context.Context, string) error
}

// LogoutResult reports which session was ended.
type LogoutResult struct {
	Failure FailureKind
	Err     error
	Claims  *jwt.Claims
}

// RunLogout revokes the presented access token until its own exp and
// removes its session. Both steps run even if one fails.
func RunLogout(ctx context.Context, token string, deps LogoutDeps) LogoutResult {
	if deps.VerifyAccess == nil || deps.RevokeUntil == nil || deps.DeleteSession == nil {
		return LogoutResult{Failure: FailureNotReady}
	}
	if token == "" {
		return LogoutResult{Failure: FailureMissingCredential}
	}

	claims, err := deps.VerifyAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return LogoutResult{Failure: FailureExpired, Err: err}
		}
		return LogoutResult{Failure: FailureMalformed, Err: err}
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	err = errors.Join(
		deps.RevokeUntil(ctx, token, exp),
		deps.DeleteSession(ctx, claims.SessionID),
	)
	if err != nil {
		return LogoutResult{Failure: FailureBackend, Err: err, Claims: claims}
	}
	return LogoutResult{Claims: claims}
}
