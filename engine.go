package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internalaudit "github.com/procuregov/authcore/internal/audit"
	"github.com/procuregov/authcore/internal/device"
	"github.com/procuregov/authcore/internal/flows"
	"github.com/procuregov/authcore/internal/limiters"
	"github.com/procuregov/authcore/internal/rate"
	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/password"
	"github.com/procuregov/authcore/revocation"
	"github.com/procuregov/authcore/session"
	"go.uber.org/zap"
)

// Engine is the authentication subsystem. It is created by [Builder.Build]
// and is safe for concurrent use.
type Engine struct {
	config       Config
	logger       *zap.Logger
	degraded     *degradedLogger
	tokens       *jwt.Manager
	sessions     *session.Store
	revocations  *revocation.List
	counter      *rate.Counter
	guard        *limiters.LoginGuard
	principals   PrincipalStore
	passwordHash *password.Argon2
	audit        *internalaudit.Dispatcher
	locator      *device.Locator
	enricher     *device.Enricher
	metrics      *Metrics
	flows        flows.Deps

	closeOnce sync.Once
	closeErr  error
}

// Close drains the audit dispatcher, closes the audit sink and releases the
// GeoIP database. It is safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.closeErr = errors.Join(e.audit.Close(), e.locator.Close())
	})
	return e.closeErr
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AccessTTL is the lifetime of issued access tokens.
func (e *Engine) AccessTTL() time.Duration {
	if e == nil || e.tokens == nil {
		return 0
	}
	return e.tokens.AccessTTL()
}

// Ping checks the session cache and reports its round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	d, err := e.sessions.Ping(ctx)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return d, nil
}

// HashPassword returns the argon2id PHC hash of plain, for provisioning
// principals in the entity store.
func (e *Engine) HashPassword(plain string) (string, error) {
	if e == nil || e.passwordHash == nil {
		return "", ErrEngineNotReady
	}
	return e.passwordHash.Hash(plain)
}

func (e *Engine) log() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// bounded applies Backend.Timeout to one backend call.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.Backend.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Backend.Timeout)
}

func wrapCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// failureError translates a flow failure into the public taxonomy.
func failureError(kind flows.FailureKind, cause error) error {
	switch kind {
	case flows.FailureNone:
		return nil
	case flows.FailureNotReady:
		return ErrEngineNotReady
	case flows.FailureMissingCredential:
		return ErrMissingCredential
	case flows.FailureMalformed:
		return wrapCause(ErrMalformedCredential, cause)
	case flows.FailureExpired:
		return wrapCause(ErrExpiredCredential, cause)
	case flows.FailureRevoked:
		return ErrRevokedCredential
	case flows.FailureSessionNotFound:
		return ErrSessionNotFound
	case flows.FailureSessionExpired:
		return ErrSessionExpired
	case flows.FailureTokenMismatch:
		return ErrTokenMismatch
	case flows.FailurePrincipalInactive:
		return ErrPrincipalInactive
	case flows.FailureInvalidCredentials:
		return ErrInvalidCredentials
	case flows.FailureLoginLocked:
		return ErrLoginLocked
	case flows.FailureBackend:
		return wrapCause(ErrBackendUnavailable, cause)
	case flows.FailureSigning:
		return wrapCause(ErrSigning, cause)
	default:
		return wrapCause(errors.New("unclassified failure "+kind.String()), cause)
	}
}

func principalRecord(p Principal) flows.PrincipalRecord {
	return flows.PrincipalRecord{
		ID:           p.ID,
		Role:         string(p.Role),
		PasswordHash: p.PasswordHash,
		Active:       p.Active(),
	}
}
