package authcore

import (
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/procuregov/authcore/internal/audit"
	"github.com/procuregov/authcore/internal/device"
	"github.com/procuregov/authcore/internal/limiters"
	"github.com/procuregov/authcore/internal/rate"
	"github.com/procuregov/authcore/jwt"
	"github.com/procuregov/authcore/password"
	"github.com/procuregov/authcore/revocation"
	"github.com/procuregov/authcore/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder is single-use: Build may be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	principals PrincipalStore
	records    session.RecordStore
	auditSink  AuditSink
	logger     *zap.Logger
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for session cache records, revocation
// entries, rate counters and the login guard. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore sets the entity store principals are read from.
// Required.
func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

// WithRecordStore sets the durable session store. Required.
func (b *Builder) WithRecordStore(store session.RecordStore) *Builder {
	b.records = store
	return b
}

// WithAuditSink sets where audit events go. It only takes effect when
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the zap logger. Without one the engine logs nothing.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the wall clock used for token and session timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build may return an error when the configuration is invalid, a required
// dependency is missing, or the GeoIP database cannot be opened.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.principals == nil {
		return nil, errors.New("principal store required")
	}
	if b.records == nil {
		return nil, errors.New("session record store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	revocations, err := revocation.NewList(b.redis, revocation.Config{
		Prefix: cfg.Revocation.RedisPrefix,
		MaxTTL: cfg.JWT.AccessTTL,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("revocation: %w", err)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	e := &Engine{
		config:      cfg,
		logger:      logger,
		tokens:      tokens,
		revocations: revocations,
		sessions: session.NewStore(b.redis, b.records, session.Config{
			Prefix: cfg.Session.RedisPrefix,
			TTL:    cfg.JWT.RefreshTTL,
			Now:    now,
		}),
		counter: rate.NewCounter(b.redis, cfg.RateLimit.RedisPrefix).WithClock(now),
		guard: limiters.NewLoginGuard(b.redis, limiters.LoginGuardConfig{
			Enabled:   cfg.LoginGuard.Enabled,
			Threshold: cfg.LoginGuard.Threshold,
			Window:    cfg.LoginGuard.Window,
		}),
		principals:   b.principals,
		passwordHash: hasher,
		metrics:      NewMetrics(cfg.Metrics),
	}
	e.degraded = newDegradedLogger(logger, cfg.Logging, func() {
		e.metricInc(MetricDegradedLogSuppressed)
	})

	if cfg.Device.Enabled {
		if cfg.Device.GeoIPPath != "" {
			locator, err := device.OpenLocator(cfg.Device.GeoIPPath)
			if err != nil {
				return nil, err
			}
			e.locator = locator
		}
		e.enricher = device.NewEnricher(e.locator)
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}
	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, sink)

	e.flows = e.buildFlows()

	b.built = true
	return e, nil
}
