package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigNeedsOnlySecrets(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg = testConfig()
	require.NoError(t, cfg.Validate())

	def := DefaultConfig()
	assert.Equal(t, 15*time.Minute, def.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, def.JWT.RefreshTTL)
	assert.Equal(t, 3, def.LoginGuard.Threshold)
	assert.Equal(t, 10*time.Minute, def.LoginGuard.Window)
	assert.True(t, def.LoginGuard.Enabled)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short access secret",
			mutate: func(c *Config) {
				c.JWT.AccessSecret = []byte("short")
			},
		},
		{
			name: "equal secrets",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = append([]byte(nil), c.JWT.AccessSecret...)
			},
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = time.Minute
			},
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
		},
		{
			name: "leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
		},
		{
			name: "negative max future iat",
			mutate: func(c *Config) {
				c.JWT.MaxFutureIAT = -time.Second
			},
		},
		{
			name: "empty session prefix",
			mutate: func(c *Config) {
				c.Session.RedisPrefix = "  "
			},
		},
		{
			name: "rate prefix collides with guard",
			mutate: func(c *Config) {
				c.RateLimit.RedisPrefix = "alf:"
			},
		},
		{
			name: "guard threshold zero",
			mutate: func(c *Config) {
				c.LoginGuard.Threshold = 0
			},
		},
		{
			name: "guard disabled ignores threshold",
			mutate: func(c *Config) {
				c.LoginGuard.Enabled = false
				c.LoginGuard.Threshold = 0
			},
			wantValid: true,
		},
		{
			name: "backend timeout zero",
			mutate: func(c *Config) {
				c.Backend.Timeout = 0
			},
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
		{
			name: "negative degraded log budget",
			mutate: func(c *Config) {
				c.Logging.DegradedPerSecond = -1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWithConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.AccessSecret[0] = 'X'

	assert.NotEqual(t, byte('X'), b.config.JWT.AccessSecret[0])
}
