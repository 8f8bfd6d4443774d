package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/procuregov/authcore/session"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine     *Engine
	redis      *miniredis.Miniredis
	principals *MemoryPrincipalStore
	records    *session.MemoryRecords
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-012345678")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Device.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	principals := NewMemoryPrincipalStore()
	records := session.NewMemoryRecords()

	b := New()
	if mutate != nil {
		mutate(&cfg, b)
	}
	engine, err := b.WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(principals).
		WithRecordStore(records).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	hash, err := engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	principals.Put(Principal{ID: "p-supplier", Email: "alice@example.gov", Role: RoleSupplier, Status: StatusActive, PasswordHash: hash})
	principals.Put(Principal{ID: "p-pending", Email: "bob@example.gov", Role: RoleCitizen, Status: StatusPending, PasswordHash: hash})

	return &testEnv{engine: engine, redis: mr, principals: principals, records: records}
}

func loginCtx(ip string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
}

func TestEngineLoginAuthenticateLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("198.51.100.7")

	res, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.PrincipalID != "p-supplier" || res.Role != RoleSupplier {
		t.Fatalf("unexpected login result: %+v", res)
	}
	if res.ExpiresIn != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %v", res.ExpiresIn)
	}
	if env.records.Len() != 1 {
		t.Fatalf("expected one durable record, got %d", env.records.Len())
	}

	id, err := env.engine.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if id.PrincipalID != "p-supplier" || id.Role != RoleSupplier || id.SessionID != res.SessionID {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if err := env.engine.Logout(ctx, res.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrRevokedCredential) {
		t.Fatalf("expected ErrRevokedCredential, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := env.engine.Logout(ctx, res.AccessToken); err != nil {
		t.Fatalf("second logout should be a no-op, got %v", err)
	}
	if env.records.Len() != 0 {
		t.Fatalf("expected durable record removed, got %d", env.records.Len())
	}
}

func TestEngineLoginNormalizesEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Login(loginCtx("198.51.100.8"), "  ALICE@Example.GOV ", testPassword); err != nil {
		t.Fatalf("login with unnormalized email failed: %v", err)
	}
}

func TestEngineLoginLocksAfterThreeFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("203.0.113.9")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.gov", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if !errors.Is(err, ErrLoginLocked) {
		t.Fatalf("expected ErrLoginLocked, got %v", err)
	}
	if KindOf(err).HTTPStatus() != 429 {
		t.Fatalf("expected 429, got %d", KindOf(err).HTTPStatus())
	}
	after, ok := RetryAfter(err)
	if !ok || after <= 0 || after > 10*time.Minute {
		t.Fatalf("unexpected retry after %v (ok=%v)", after, ok)
	}

	if _, err := env.engine.Login(loginCtx("203.0.113.10"), "alice@example.gov", testPassword); err != nil {
		t.Fatalf("other ip should not be locked: %v", err)
	}

	env.redis.FastForward(10*time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); err != nil {
		t.Fatalf("expected lock to lapse, got %v", err)
	}
}

func TestEngineLoginSuccessClearsFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("203.0.113.20")

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.gov", "wrong-password-000")
	}
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.gov", "wrong-password-000")
	}
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); err != nil {
		t.Fatalf("failures before the success should have been cleared: %v", err)
	}
}

func TestEngineLoginUnknownEmailCountsAsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("203.0.113.30")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "nobody@example.gov", testPassword); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); !errors.Is(err, ErrLoginLocked) {
		t.Fatalf("expected ErrLoginLocked, got %v", err)
	}
}

func TestEngineLoginInactivePrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("203.0.113.40")

	for i := 0; i < 4; i++ {
		if _, err := env.engine.Login(ctx, "bob@example.gov", testPassword); !errors.Is(err, ErrPrincipalInactive) {
			t.Fatalf("attempt %d: expected ErrPrincipalInactive, got %v", i+1, err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); err != nil {
		t.Fatalf("inactive logins must not count toward the lock: %v", err)
	}
}

func TestEngineLoginWithoutClientIPSkipsGuard(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(context.Background(), "alice@example.gov", "wrong-password-000")
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.gov", testPassword); err != nil {
		t.Fatalf("expected login without ip to bypass guard, got %v", err)
	}
}

func TestEngineAuthenticateMissingAndMalformed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Authenticate(ctx, ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, "not-a-token"); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential, got %v", err)
	}

	res, err := env.engine.Login(loginCtx("198.51.100.50"), "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.RefreshToken); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("refresh token must not authenticate, got %v", err)
	}
}

func TestEngineAuthenticateExpired(t *testing.T) {
	clock := &testClock{now: time.Now()}
	env := newTestEnv(t, func(_ *Config, b *Builder) { b.WithClock(clock.Now) })

	res, err := env.engine.Login(loginCtx("198.51.100.60"), "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	clock.Advance(16 * time.Minute)

	_, err = env.engine.Authenticate(context.Background(), res.AccessToken)
	if !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
	if KindOf(err).HTTPStatus() != 401 {
		t.Fatalf("expected 401, got %d", KindOf(err).HTTPStatus())
	}
}

func TestEngineAuthenticateUsesCurrentPrincipalState(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("198.51.100.70")

	res, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.principals.SetRole("p-supplier", RoleAuditor); err != nil {
		t.Fatalf("set role failed: %v", err)
	}
	id, err := env.engine.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if id.Role != RoleAuditor {
		t.Fatalf("expected current role AUDITOR, got %s", id.Role)
	}

	if err := env.principals.SetStatus("p-supplier", StatusSuspended); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrPrincipalInactive) {
		t.Fatalf("expected ErrPrincipalInactive, got %v", err)
	}
}

func TestEngineAuthenticateFailsClosedWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.engine.Login(loginCtx("198.51.100.80"), "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	env.redis.Close()

	_, err = env.engine.Authenticate(context.Background(), res.AccessToken)
	if !errors.Is(err, ErrAuthenticationFailed) || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected authentication failure wrapping backend error, got %v", err)
	}
	if KindOf(err) != KindAuthentication || KindOf(err).HTTPStatus() != 401 {
		t.Fatalf("expected 401 AuthenticationError, got %s", KindOf(err))
	}
}

func TestEngineRefreshIssuesWorkingAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("198.51.100.90")

	login, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	res, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if res.AccessToken == "" || res.ExpiresIn != 15*time.Minute {
		t.Fatalf("unexpected refresh result: %+v", res)
	}
	if res.RefreshToken != "" {
		t.Fatalf("rotation is off, expected no refresh token")
	}
	if _, err := env.engine.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("refreshed access token rejected: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh token should be reusable without rotation: %v", err)
	}
}

func TestEngineRefreshRestoresLostCacheRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := loginCtx("198.51.100.91")

	login, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	env.redis.Del("as:" + login.SessionID)

	if _, err := env.engine.Authenticate(ctx, login.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound before restore, got %v", err)
	}

	res, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := env.engine.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("authenticate after restore failed: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshRestored]; got != 1 {
		t.Fatalf("expected one restore, got %d", got)
	}
}

func TestEngineRefreshRotationRejectsReplay(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) { cfg.Session.RotateRefreshOnUse = true })
	ctx := loginCtx("198.51.100.92")

	login, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	first, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if first.RefreshToken == "" || first.RefreshToken == login.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}

	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch on replay, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("replay must end the session, got %v", err)
	}
}

func TestEngineRefreshRotationRaceHasOneWinner(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) { cfg.Session.RotateRefreshOnUse = true })
	ctx := loginCtx("198.51.100.93")

	login, err := env.engine.Login(ctx, "alice@example.gov", testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Refresh(ctx, login.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenMismatch), errors.Is(err, ErrSessionNotFound):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins > 1 {
		t.Fatalf("expected at most one winner, got %d", wins)
	}
}

func TestEngineRefreshMalformed(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Refresh(context.Background(), "garbage")
	if !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected ErrMalformedCredential, got %v", err)
	}
}

func TestEngineTryAcquireFixedWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d := env.engine.TryAcquire(ctx, "bids", "198.51.100.1", 2, time.Minute)
		if !d.Allowed || d.Degraded {
			t.Fatalf("request %d should be allowed: %+v", i+1, d)
		}
	}
	d := env.engine.TryAcquire(ctx, "bids", "198.51.100.1", 2, time.Minute)
	if d.Allowed {
		t.Fatalf("third request should be denied")
	}
	if d.Remaining != 0 || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected denial: %+v", d)
	}

	env.redis.FastForward(time.Minute + time.Millisecond)
	if d := env.engine.TryAcquire(ctx, "bids", "198.51.100.1", 2, time.Minute); !d.Allowed {
		t.Fatalf("new window should allow: %+v", d)
	}
}

func TestEngineTryAcquireFailsOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	env.redis.Close()

	d := env.engine.TryAcquire(context.Background(), "bids", "198.51.100.2", 1, time.Minute)
	if !d.Allowed || !d.Degraded {
		t.Fatalf("expected degraded allow, got %+v", d)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRateLimitDegraded]; got != 1 {
		t.Fatalf("expected degraded metric 1, got %d", got)
	}
}

func TestEngineLoginGuardFailsOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	env.redis.Close()

	// Session creation needs Redis too, so the login fails, but not on the guard.
	_, err := env.engine.Login(loginCtx("198.51.100.3"), "alice@example.gov", testPassword)
	if errors.Is(err, ErrLoginLocked) {
		t.Fatalf("guard outage must not lock callers out")
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable from session create, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginGuardDegraded]; got == 0 {
		t.Fatalf("expected guard degraded metric")
	}
}

func TestEngineAuditEvents(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, func(cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	})
	ctx := loginCtx("198.51.100.100")

	if _, err := env.engine.Login(ctx, "alice@example.gov", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.gov", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	want := []struct {
		eventType string
		success   bool
		errCode   string
	}{
		{auditEventLoginFailure, false, string(KindInvalidCredentials)},
		{auditEventLoginSuccess, true, ""},
	}
	for _, w := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != w.eventType || ev.Success != w.success || ev.Error != w.errCode {
				t.Fatalf("unexpected event %+v, want %+v", ev, w)
			}
			if ev.IP != "198.51.100.100" {
				t.Fatalf("expected ip on event, got %q", ev.IP)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", w.eventType)
		}
	}
}

func TestEngineNilSafe(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Authenticate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if d := e.TryAcquire(context.Background(), "s", "i", 1, time.Second); !d.Allowed || !d.Degraded {
		t.Fatalf("nil engine must fail open, got %+v", d)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close on nil engine: %v", err)
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatalf("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithRecordStore(session.NewMemoryRecords()).Build(); err == nil {
		t.Fatalf("expected error without principal store")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithPrincipalStore(NewMemoryPrincipalStore()).Build(); err == nil {
		t.Fatalf("expected error without record store")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).
		WithPrincipalStore(NewMemoryPrincipalStore()).
		WithRecordStore(session.NewMemoryRecords())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected builder reuse to fail")
	}
}
