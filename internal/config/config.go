// Package config loads process configuration for the authcore binary from
// the environment, with an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/procuregov/authcore"
)

// Store backends accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreBolt     = "bbolt"
)

// Config is everything the server needs besides the engine configuration.
type Config struct {
	Environment     string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	RedisAddrs    []string
	RedisPassword string
	RedisDB       int

	// StoreDriver selects where durable session records and principals live.
	// STORE_DSN is a file path for sqlite and bbolt and a connection string
	// otherwise. The bbolt store holds session records only; principals
	// then come from sqlite at PRINCIPAL_DSN.
	StoreDriver  string
	StoreDSN     string
	PrincipalDSN string

	TrustedProxies []string
	LoginRPM       int
	RefreshRPM     int

	KafkaBrokers []string
	KafkaTopic   string

	Engine authcore.Config
}

// Load reads the environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile is Load with an explicit env file, which must exist.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	engine := authcore.DefaultConfig()
	engine.JWT.AccessSecret = []byte(os.Getenv("JWT_ACCESS_SECRET"))
	engine.JWT.RefreshSecret = []byte(os.Getenv("JWT_REFRESH_SECRET"))
	engine.JWT.AccessTTL = getDuration("ACCESS_TOKEN_TTL", engine.JWT.AccessTTL)
	engine.JWT.RefreshTTL = getDuration("REFRESH_TOKEN_TTL", engine.JWT.RefreshTTL)
	engine.JWT.Issuer = getEnv("JWT_ISSUER", engine.JWT.Issuer)
	engine.JWT.Audience = getEnv("JWT_AUDIENCE", engine.JWT.Audience)
	engine.Session.RotateRefreshOnUse = getBool("ROTATE_REFRESH_ON_USE", engine.Session.RotateRefreshOnUse)
	engine.LoginGuard.Threshold = getInt("LOGIN_FAILURE_THRESHOLD", engine.LoginGuard.Threshold)
	engine.LoginGuard.Window = getDuration("LOGIN_FAILURE_WINDOW", engine.LoginGuard.Window)
	engine.Backend.Timeout = getDuration("BACKEND_TIMEOUT", engine.Backend.Timeout)
	engine.Audit.Enabled = getBool("AUDIT_ENABLED", engine.Audit.Enabled)
	engine.Audit.BufferSize = getInt("AUDIT_BUFFER_SIZE", engine.Audit.BufferSize)
	engine.Metrics.Enabled = getBool("METRICS_ENABLED", engine.Metrics.Enabled)
	engine.Device.GeoIPPath = os.Getenv("GEOIP_DB_PATH")

	cfg := Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedisAddrs:      getList("REDIS_ADDRS", []string{"127.0.0.1:6379"}),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getInt("REDIS_DB", 0),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		StoreDSN:        getEnv("STORE_DSN", "authcore.db"),
		PrincipalDSN:    getEnv("PRINCIPAL_DSN", "authcore.db"),
		TrustedProxies:  getList("TRUSTED_PROXIES", nil),
		LoginRPM:        getInt("LOGIN_RATE_LIMIT_RPM", 20),
		RefreshRPM:      getInt("REFRESH_RATE_LIMIT_RPM", 60),
		KafkaBrokers:    getList("AUDIT_KAFKA_BROKERS", nil),
		KafkaTopic:      getEnv("AUDIT_KAFKA_TOPIC", "authcore.audit"),
		Engine:          engine,
	}

	switch cfg.StoreDriver {
	case StoreMemory, StoreSQLite, StoreMySQL, StorePostgres, StoreBolt:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver)
	}
	if cfg.LoginRPM <= 0 || cfg.RefreshRPM <= 0 {
		return Config{}, fmt.Errorf("route rate limits must be > 0")
	}
	if len(cfg.KafkaBrokers) > 0 {
		cfg.Engine.Audit.Enabled = true
	}

	return cfg, nil
}

// IsDevelopment reports whether APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		return cleaned
	}
	return def
}
