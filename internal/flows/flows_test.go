package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/procuregov/authcore/internal/limiters"
	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/session"
)

var errNotFound = errors.New("principal not found")

func okClaims() *jwt.Claims {
	return &jwt.Claims{PrincipalID: "p-1", Role: "SUPPLIER", SessionID: "s-1", Kind: jwt.KindAccess}
}

func authDeps() AuthenticateDeps {
	return AuthenticateDeps{
		VerifyAccess: func(string) (*jwt.Claims, error) { return okClaims(), nil },
		IsRevoked:    func(context.Context, string) (bool, error) { return false, nil },
		GetSession: func(context.Context, string) (*session.Session, error) {
			return &session.Session{SessionID: "s-1", PrincipalID: "p-1", Role: "SUPPLIER"}, nil
		},
		FindPrincipal: func(context.Context, string) (PrincipalRecord, error) {
			return PrincipalRecord{ID: "p-1", Role: "SUPPLIER", Active: true}, nil
		},
		PrincipalNotFound: errNotFound,
	}
}

func TestRunAuthenticateClassifiesEachTransition(t *testing.T) {
	backend := errors.New("redis: i/o timeout")

	cases := []struct {
		name   string
		token  string
		mutate func(*AuthenticateDeps)
		want   FailureKind
	}{
		{"authorized", "tok", func(*AuthenticateDeps) {}, FailureNone},
		{"no credential", "", func(*AuthenticateDeps) {}, FailureMissingCredential},
		{"expired", "tok", func(d *AuthenticateDeps) {
			d.VerifyAccess = func(string) (*jwt.Claims, error) { return nil, jwt.ErrExpired }
		}, FailureExpired},
		{"malformed", "tok", func(d *AuthenticateDeps) {
			d.VerifyAccess = func(string) (*jwt.Claims, error) { return nil, jwt.ErrMalformed }
		}, FailureMalformed},
		{"revoked", "tok", func(d *AuthenticateDeps) {
			d.IsRevoked = func(context.Context, string) (bool, error) { return true, nil }
		}, FailureRevoked},
		{"revocation backend down", "tok", func(d *AuthenticateDeps) {
			d.IsRevoked = func(context.Context, string) (bool, error) { return false, backend }
		}, FailureBackend},
		{"session missing", "tok", func(d *AuthenticateDeps) {
			d.GetSession = func(context.Context, string) (*session.Session, error) { return nil, session.ErrSessionNotFound }
		}, FailureSessionNotFound},
		{"session expired", "tok", func(d *AuthenticateDeps) {
			d.GetSession = func(context.Context, string) (*session.Session, error) { return nil, session.ErrSessionExpired }
		}, FailureSessionExpired},
		{"session backend down", "tok", func(d *AuthenticateDeps) {
			d.GetSession = func(context.Context, string) (*session.Session, error) { return nil, session.ErrRedisUnavailable }
		}, FailureBackend},
		{"session of another principal", "tok", func(d *AuthenticateDeps) {
			d.GetSession = func(context.Context, string) (*session.Session, error) {
				return &session.Session{SessionID: "s-1", PrincipalID: "p-2"}, nil
			}
		}, FailureSessionNotFound},
		{"principal suspended", "tok", func(d *AuthenticateDeps) {
			d.FindPrincipal = func(context.Context, string) (PrincipalRecord, error) {
				return PrincipalRecord{ID: "p-1", Active: false}, nil
			}
		}, FailurePrincipalInactive},
		{"principal gone", "tok", func(d *AuthenticateDeps) {
			d.FindPrincipal = func(context.Context, string) (PrincipalRecord, error) { return PrincipalRecord{}, errNotFound }
		}, FailurePrincipalInactive},
		{"principal store down", "tok", func(d *AuthenticateDeps) {
			d.FindPrincipal = func(context.Context, string) (PrincipalRecord, error) { return PrincipalRecord{}, backend }
		}, FailureBackend},
		{"not ready", "tok", func(d *AuthenticateDeps) { d.GetSession = nil }, FailureNotReady},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := authDeps()
			tc.mutate(&deps)
			res := RunAuthenticate(context.Background(), tc.token, deps)
			if res.Failure != tc.want {
				t.Fatalf("expected %v, got %v (err=%v)", tc.want, res.Failure, res.Err)
			}
		})
	}
}

type loginRecorder struct {
	lookups  int
	failures int
	cleared  int
	deleted  []string
	degraded []string
}

func loginDeps(rec *loginRecorder) LoginDeps {
	return LoginDeps{
		CheckGuard: func(context.Context, string) (limiters.Verdict, error) { return limiters.Verdict{}, nil },
		RecordFailure: func(context.Context, string) (limiters.Verdict, error) {
			rec.failures++
			return limiters.Verdict{Failures: rec.failures}, nil
		},
		ClearGuard: func(context.Context, string) error { rec.cleared++; return nil },
		FindPrincipalByEmail: func(_ context.Context, email string) (PrincipalRecord, error) {
			rec.lookups++
			if email != "buyer@agency.gov" {
				return PrincipalRecord{}, errNotFound
			}
			return PrincipalRecord{ID: "p-1", Role: "AGENCY", PasswordHash: "hash:correct", Active: true}, nil
		},
		PrincipalNotFound: errNotFound,
		VerifyPassword: func(plain, encoded string) (bool, error) {
			return encoded == "hash:"+plain, nil
		},
		DummyHash: "hash:dummy",
		CreateSession: func(_ context.Context, principalID, role, ip, ua string) (*session.Session, error) {
			return &session.Session{SessionID: "s-new", PrincipalID: principalID, Role: role, SourceIP: ip, UserAgent: ua}, nil
		},
		BindSession:   func(context.Context, *session.Session, string) error { return nil },
		DeleteSession: func(_ context.Context, id string) error { rec.deleted = append(rec.deleted, id); return nil },
		IssueAccess:   func(s jwt.Subject) (string, error) { return "access:" + s.SessionID, nil },
		IssueRefresh:  func(s jwt.Subject) (string, error) { return "refresh:" + s.SessionID, nil },
		OnDegraded: func(_ context.Context, component string, _ error) {
			rec.degraded = append(rec.degraded, component)
		},
	}
}

func TestRunLoginSuccessClearsGuard(t *testing.T) {
	rec := &loginRecorder{}
	res := RunLogin(context.Background(), LoginInput{Email: "buyer@agency.gov", Password: "correct", IP: "1.2.3.4"}, loginDeps(rec))
	if res.Failure != FailureNone {
		t.Fatalf("expected success, got %v", res.Failure)
	}
	if res.AccessToken != "access:s-new" || res.RefreshToken != "refresh:s-new" {
		t.Fatalf("unexpected tokens %q %q", res.AccessToken, res.RefreshToken)
	}
	if rec.cleared != 1 || rec.failures != 0 {
		t.Fatalf("expected guard cleared once and no failures, got %+v", rec)
	}
}

func TestRunLoginLockedSkipsCredentialCheck(t *testing.T) {
	rec := &loginRecorder{}
	deps := loginDeps(rec)
	deps.CheckGuard = func(context.Context, string) (limiters.Verdict, error) {
		return limiters.Verdict{Locked: true, Failures: 3, RetryAfter: 7 * time.Minute}, nil
	}

	res := RunLogin(context.Background(), LoginInput{Email: "buyer@agency.gov", Password: "correct", IP: "1.2.3.4"}, deps)
	if res.Failure != FailureLoginLocked || res.RetryAfter != 7*time.Minute {
		t.Fatalf("expected locked with retry, got %+v", res)
	}
	if rec.lookups != 0 {
		t.Fatal("expected no principal lookup while locked")
	}
}

func TestRunLoginGuardOutageFailsOpen(t *testing.T) {
	rec := &loginRecorder{}
	deps := loginDeps(rec)
	deps.CheckGuard = func(context.Context, string) (limiters.Verdict, error) {
		return limiters.Verdict{}, limiters.ErrGuardUnavailable
	}

	res := RunLogin(context.Background(), LoginInput{Email: "buyer@agency.gov", Password: "correct", IP: "1.2.3.4"}, deps)
	if res.Failure != FailureNone {
		t.Fatalf("expected login to proceed, got %v", res.Failure)
	}
	if len(rec.degraded) != 1 || rec.degraded[0] != "login_guard" {
		t.Fatalf("expected degraded event, got %v", rec.degraded)
	}
}

func TestRunLoginFailuresAreCounted(t *testing.T) {
	rec := &loginRecorder{}
	deps := loginDeps(rec)
	ctx := context.Background()

	inputs := []LoginInput{
		{Email: "buyer@agency.gov", Password: "wrong"},
		{Email: "nobody@agency.gov", Password: "whatever"},
		{Email: "buyer@agency.gov", Password: ""},
		{Email: "   ", Password: "x"},
	}
	for i, in := range inputs {
		in.IP = "1.2.3.4"
		res := RunLogin(ctx, in, deps)
		if res.Failure != FailureInvalidCredentials {
			t.Fatalf("input %d: expected invalid credentials, got %v", i, res.Failure)
		}
		if res.Failures != i+1 {
			t.Fatalf("input %d: expected failure count %d, got %d", i, i+1, res.Failures)
		}
	}
}

func TestRunLoginInactivePrincipalIsNotAFailure(t *testing.T) {
	rec := &loginRecorder{}
	deps := loginDeps(rec)
	deps.FindPrincipalByEmail = func(context.Context, string) (PrincipalRecord, error) {
		return PrincipalRecord{ID: "p-9", PasswordHash: "hash:pw", Active: false}, nil
	}

	res := RunLogin(context.Background(), LoginInput{Email: "x@y.z", Password: "pw", IP: "1.2.3.4"}, deps)
	if res.Failure != FailurePrincipalInactive {
		t.Fatalf("expected principal inactive, got %v", res.Failure)
	}
	if rec.failures != 0 {
		t.Fatal("expected no failure recorded for inactive principal")
	}
}

func TestRunLoginBindFailureDeletesSession(t *testing.T) {
	rec := &loginRecorder{}
	deps := loginDeps(rec)
	deps.BindSession = func(context.Context, *session.Session, string) error { return session.ErrRecordStoreUnavailable }

	res := RunLogin(context.Background(), LoginInput{Email: "buyer@agency.gov", Password: "correct"}, deps)
	if res.Failure != FailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
	if len(rec.deleted) != 1 || rec.deleted[0] != "s-new" {
		t.Fatalf("expected half-built session deleted, got %v", rec.deleted)
	}
	if rec.cleared != 0 {
		t.Fatal("expected guard untouched on failed login")
	}
}

func refreshDeps(restored *bool, deleted *[]string) RefreshDeps {
	return RefreshDeps{
		VerifyRefresh: func(string) (*jwt.Claims, error) {
			c := okClaims()
			c.Kind = jwt.KindRefresh
			return c, nil
		},
		MatchesRefresh: func(context.Context, string, string) (session.Record, error) {
			return session.Record{SessionID: "s-1", PrincipalID: "p-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		GetSession: func(context.Context, string) (*session.Session, error) {
			return &session.Session{SessionID: "s-1", PrincipalID: "p-1"}, nil
		},
		RestoreSession: func(context.Context, session.Record, string) error { *restored = true; return nil },
		DeleteSession:  func(_ context.Context, id string) error { *deleted = append(*deleted, id); return nil },
		FindPrincipal: func(context.Context, string) (PrincipalRecord, error) {
			return PrincipalRecord{ID: "p-1", Role: "ADMIN", Active: true}, nil
		},
		PrincipalNotFound: errNotFound,
		IssueAccess:       func(s jwt.Subject) (string, error) { return "access:" + s.Role, nil },
	}
}

func TestRunRefreshIssuesAccessWithCurrentRole(t *testing.T) {
	var restored bool
	var deleted []string
	res := RunRefresh(context.Background(), "refresh-token", refreshDeps(&restored, &deleted))
	if res.Failure != FailureNone {
		t.Fatalf("expected success, got %v", res.Failure)
	}
	if res.AccessToken != "access:ADMIN" || res.RefreshToken != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if restored {
		t.Fatal("expected no restore while cache record exists")
	}
}

func TestRunRefreshRestoresMissingCache(t *testing.T) {
	var restored bool
	var deleted []string
	deps := refreshDeps(&restored, &deleted)
	deps.GetSession = func(context.Context, string) (*session.Session, error) { return nil, session.ErrSessionNotFound }

	res := RunRefresh(context.Background(), "refresh-token", deps)
	if res.Failure != FailureNone || !res.Restored || !restored {
		t.Fatalf("expected restore and success, got %+v", res)
	}
}

func TestRunRefreshFailureMapping(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RefreshDeps)
		want   FailureKind
		delete bool
	}{
		{"session deleted", func(d *RefreshDeps) {
			d.MatchesRefresh = func(context.Context, string, string) (session.Record, error) {
				return session.Record{}, session.ErrSessionNotFound
			}
		}, FailureSessionNotFound, false},
		{"durable expired", func(d *RefreshDeps) {
			d.MatchesRefresh = func(context.Context, string, string) (session.Record, error) {
				return session.Record{}, session.ErrSessionExpired
			}
		}, FailureSessionExpired, false},
		{"hash mismatch", func(d *RefreshDeps) {
			d.MatchesRefresh = func(context.Context, string, string) (session.Record, error) {
				return session.Record{}, session.ErrRefreshHashMismatch
			}
		}, FailureTokenMismatch, false},
		{"principal mismatch", func(d *RefreshDeps) {
			d.MatchesRefresh = func(context.Context, string, string) (session.Record, error) {
				return session.Record{SessionID: "s-1", PrincipalID: "someone-else"}, nil
			}
		}, FailureTokenMismatch, true},
		{"principal suspended", func(d *RefreshDeps) {
			d.FindPrincipal = func(context.Context, string) (PrincipalRecord, error) {
				return PrincipalRecord{ID: "p-1", Active: false}, nil
			}
		}, FailurePrincipalInactive, true},
		{"expired token", func(d *RefreshDeps) {
			d.VerifyRefresh = func(string) (*jwt.Claims, error) { return nil, jwt.ErrExpired }
		}, FailureExpired, false},
		{"record store down", func(d *RefreshDeps) {
			d.MatchesRefresh = func(context.Context, string, string) (session.Record, error) {
				return session.Record{}, session.ErrRecordStoreUnavailable
			}
		}, FailureBackend, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var restored bool
			var deleted []string
			deps := refreshDeps(&restored, &deleted)
			tc.mutate(&deps)
			res := RunRefresh(context.Background(), "refresh-token", deps)
			if res.Failure != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, res.Failure)
			}
			if res.AccessToken != "" {
				t.Fatal("expected no access token on failure")
			}
			if tc.delete != (len(deleted) == 1) {
				t.Fatalf("expected delete=%v, got %v", tc.delete, deleted)
			}
		})
	}
}

func TestRunRefreshRotation(t *testing.T) {
	var restored bool
	var deleted []string
	deps := refreshDeps(&restored, &deleted)
	deps.Rotate = true
	deps.IssueRefresh = func(jwt.Subject) (string, error) { return "refresh-next", nil }
	var swapped [2]string
	deps.RotateRefresh = func(_ context.Context, _ string, presented, next string) error {
		swapped = [2]string{presented, next}
		return nil
	}

	res := RunRefresh(context.Background(), "refresh-token", deps)
	if res.Failure != FailureNone || res.RefreshToken != "refresh-next" {
		t.Fatalf("expected rotated refresh token, got %+v", res)
	}
	if swapped != [2]string{"refresh-token", "refresh-next"} {
		t.Fatalf("unexpected swap %v", swapped)
	}

	deps.RotateRefresh = func(context.Context, string, string, string) error { return session.ErrRefreshHashMismatch }
	if res := RunRefresh(context.Background(), "refresh-token", deps); res.Failure != FailureTokenMismatch {
		t.Fatalf("expected losing rotation to be a token mismatch, got %v", res.Failure)
	}
}

func TestRunLogoutAttemptsBothSteps(t *testing.T) {
	exp := time.Unix(1_760_000_900, 0)
	var revokedUntil time.Time
	var deleted string
	deps := LogoutDeps{
		VerifyAccess: func(string) (*jwt.Claims, error) {
			c := okClaims()
			c.ExpiresAt = gjwt.NewNumericDate(exp)
			return c, nil
		},
		RevokeUntil: func(_ context.Context, _ string, until time.Time) error {
			revokedUntil = until
			return errors.New("redis down")
		},
		DeleteSession: func(_ context.Context, id string) error { deleted = id; return nil },
	}

	res := RunLogout(context.Background(), "tok", deps)
	if res.Failure != FailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
	if !revokedUntil.Equal(exp) {
		t.Fatalf("expected revocation until token exp, got %v", revokedUntil)
	}
	if deleted != "s-1" {
		t.Fatal("expected session delete attempted despite revocation failure")
	}

	if res := RunLogout(context.Background(), "", deps); res.Failure != FailureMissingCredential {
		t.Fatalf("expected missing credential, got %v", res.Failure)
	}
}

func TestFailureKindString(t *testing.T) {
	if FailureLoginLocked.String() != "login_locked" || FailureKind(99).String() != "unknown" {
		t.Fatal("unexpected failure kind names")
	}
}
