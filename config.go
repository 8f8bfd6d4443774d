package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of the engine. Obtain a baseline from
// [DefaultConfig], set the secrets, and pass it to [Builder.WithConfig].
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	Revocation RevocationConfig
	RateLimit  RateLimitConfig
	LoginGuard LoginGuardConfig
	Backend    BackendConfig
	Password   PasswordConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
	Device     DeviceConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures both credential kinds. Access and refresh tokens are
// signed with HS256 under separate secrets.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session cache record. Session lifetime always
// equals JWT.RefreshTTL.
type SessionConfig struct {
	RedisPrefix string
	// RotateRefreshOnUse issues a new refresh token on every refresh and
	// invalidates the presented one.
	RotateRefreshOnUse bool
}

// RevocationConfig controls the access-token deny-list.
type RevocationConfig struct {
	RedisPrefix string
}

// RateLimitConfig controls the generic fixed-window counter.
type RateLimitConfig struct {
	RedisPrefix string
}

// LoginGuardConfig is the per-IP login failure lockout policy.
type LoginGuardConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
}

// BackendConfig bounds every call into Redis and the record store.
type BackendConfig struct {
	Timeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig toggles in-process counters and the authenticate latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig bounds how many degraded-mode events per second reach the
// logger. Events over the budget are counted, not logged.
type LoggingConfig struct {
	DegradedPerSecond float64
	DegradedBurst     int
}

// DeviceConfig controls audit enrichment. GeoIPPath points at a MaxMind
// GeoLite2/GeoIP2 Country or City database; empty disables country lookup.
type DeviceConfig struct {
	Enabled   bool
	GeoIPPath string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Secrets are left empty
// and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "procurement-auth",
			Leeway:       5 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:        "as",
			RotateRefreshOnUse: false,
		},
		Revocation: RevocationConfig{
			RedisPrefix: "arv:",
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "arl:",
		},
		LoginGuard: LoginGuardConfig{
			Enabled:   true,
			Threshold: 3,
			Window:    10 * time.Minute,
		},
		Backend: BackendConfig{
			Timeout: 250 * time.Millisecond,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Logging: LoggingConfig{
			DegradedPerSecond: 1,
			DegradedBurst:     5,
		},
		Device: DeviceConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const minSecretLength = 32

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < minSecretLength {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < minSecretLength {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}

	// Redis key layout
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.TrimSpace(c.Revocation.RedisPrefix) == "" {
		return errors.New("Revocation RedisPrefix must not be empty")
	}
	if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}
	prefixes := map[string]bool{}
	for _, p := range []string{c.Session.RedisPrefix + ":", c.Revocation.RedisPrefix, c.RateLimit.RedisPrefix, "alf:"} {
		if prefixes[p] {
			return errors.New("Redis prefixes must be distinct")
		}
		prefixes[p] = true
	}

	// Login guard
	if c.LoginGuard.Enabled {
		if c.LoginGuard.Threshold <= 0 {
			return errors.New("LoginGuard Threshold must be > 0")
		}
		if c.LoginGuard.Window <= 0 {
			return errors.New("LoginGuard Window must be > 0")
		}
	}

	// Backend
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	// Logging
	if c.Logging.DegradedPerSecond < 0 || c.Logging.DegradedBurst < 0 {
		return errors.New("Logging degraded budget must be >= 0")
	}

	return nil
}
