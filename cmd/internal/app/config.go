package app

import (
	"fmt"
	"strings"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/realtime"
	"workfolio/cmd/internal/reissue"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"PORTAL_HTTP_ADDR"  envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"PORTAL_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"PORTAL_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"PORTAL_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"PORTAL_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"PORTAL_HTTP_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"PORTAL_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"PORTAL_HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	MaxHeaderBytes    int           `env:"PORTAL_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`

	DatabaseURL string `env:"PORTAL_DATABASE_URL"`
	DBMaxConns  int32  `env:"PORTAL_DB_MAX_CONNS"  envDefault:"10"`
	DBMinConns  int32  `env:"PORTAL_DB_MIN_CONNS"  envDefault:"0"`
	AuditSchema string `env:"PORTAL_AUDIT_SCHEMA"  envDefault:"portal"`

	DBMaxConnIdleTime time.Duration `env:"PORTAL_DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBHealthCheck     time.Duration `env:"PORTAL_DB_HEALTH_CHECK"       envDefault:"30s"`
	// DialTimeout bounds the startup ping of Postgres and Redis.
	DialTimeout time.Duration `env:"PORTAL_DIAL_TIMEOUT" envDefault:"3s"`
	// ReadyTimeout bounds each dependency ping behind /readyz.
	ReadyTimeout time.Duration `env:"PORTAL_READY_TIMEOUT" envDefault:"2s"`

	RedisAddr     string `env:"PORTAL_REDIS_ADDR"`
	RedisPassword string `env:"PORTAL_REDIS_PASSWORD"`
	RedisDB       int    `env:"PORTAL_REDIS_DB" envDefault:"0"`

	// If true, /readyz returns 503 unless the dependency is configured and reachable.
	ReadinessRequireDB    bool `env:"PORTAL_READINESS_REQUIRE_DB"    envDefault:"false"`
	ReadinessRequireRedis bool `env:"PORTAL_READINESS_REQUIRE_REDIS" envDefault:"false"`

	// APIBaseURL is the resource API behind /api/. Empty means the identity upstream.
	APIBaseURL string `env:"PORTAL_API_BASE_URL"`

	MetricsEnabled bool `env:"PORTAL_METRICS_ENABLED" envDefault:"true"`

	// If true, PORTAL_TOKEN_HMAC_KEY must be set and refresh hashes are HMAC-based.
	RequireTokenHMAC bool `env:"PORTAL_REQUIRE_TOKEN_HMAC" envDefault:"false"`

	Reissue      reissue.Config
	Gateway      realtime.GatewayConfig
	UserCookies  credential.Config
	AdminCookies credential.Config
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse app env: %w", err)
	}

	var err error
	if cfg.Reissue, err = reissue.LoadConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Gateway, err = realtime.LoadGatewayConfigFromEnv(); err != nil {
		return Config{}, err
	}
	if cfg.UserCookies, err = credential.LoadConfigFromEnv(credential.NamespaceUser); err != nil {
		return Config{}, err
	}
	if cfg.AdminCookies, err = credential.LoadConfigFromEnv(credential.NamespaceAdmin); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	if c.HTTPAddr == "" {
		c.HTTPAddr = "0.0.0.0:8080"
	}
	c.ReadHeaderTimeout = nonZeroDuration(c.ReadHeaderTimeout, 5*time.Second)
	c.ReadTimeout = nonZeroDuration(c.ReadTimeout, 15*time.Second)
	c.WriteTimeout = nonZeroDuration(c.WriteTimeout, 15*time.Second)
	c.IdleTimeout = nonZeroDuration(c.IdleTimeout, 60*time.Second)
	c.ShutdownTimeout = nonZeroDuration(c.ShutdownTimeout, 10*time.Second)
	c.MaxHeaderBytes = nonZeroInt(c.MaxHeaderBytes, 1<<20)
	if c.DBMaxConns <= 0 {
		c.DBMaxConns = 10
	}
	if c.DBMinConns < 0 {
		c.DBMinConns = 0
	}
	if c.DBMinConns > c.DBMaxConns {
		c.DBMinConns = c.DBMaxConns
	}
	c.DBMaxConnIdleTime = nonZeroDuration(c.DBMaxConnIdleTime, 5*time.Minute)
	c.DBHealthCheck = nonZeroDuration(c.DBHealthCheck, 30*time.Second)
	c.DialTimeout = nonZeroDuration(c.DialTimeout, 3*time.Second)
	c.ReadyTimeout = nonZeroDuration(c.ReadyTimeout, 2*time.Second)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Reissue.UpstreamBaseURL), "/")
	}
	if c.UserCookies.Namespace == "" {
		c.UserCookies = credential.DefaultConfig(credential.NamespaceUser)
	}
	if c.AdminCookies.Namespace == "" {
		c.AdminCookies = credential.DefaultConfig(credential.NamespaceAdmin)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
