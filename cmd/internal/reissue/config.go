package reissue

import (
	"fmt"
	"strings"
	"time"

	"workfolio/cmd/internal/credential"

	"github.com/caarlos0/env/v11"
)

// Config controls the reissue endpoint and its upstream calls.
type Config struct {
	// UpstreamBaseURL is the identity service origin.
	UpstreamBaseURL string `env:"PORTAL_UPSTREAM_BASE_URL"`
	// UserPath and AdminPath are the identity service reissue routes.
	UserPath  string `env:"PORTAL_UPSTREAM_REISSUE_PATH"       envDefault:"/auth/reissue"`
	AdminPath string `env:"PORTAL_UPSTREAM_ADMIN_REISSUE_PATH" envDefault:"/admin/auth/reissue"`
	// RefreshHeader carries the refresh credential upstream. The access credential always
	// travels as a bearer Authorization header.
	RefreshHeader   string        `env:"PORTAL_UPSTREAM_REFRESH_HEADER" envDefault:"X-Refresh-Token"`
	UpstreamTimeout time.Duration `env:"PORTAL_UPSTREAM_TIMEOUT"        envDefault:"10s"`

	RequireCSRF bool   `env:"PORTAL_REISSUE_REQUIRE_CSRF" envDefault:"true"`
	CSRFHeader  string `env:"PORTAL_REISSUE_CSRF_HEADER"  envDefault:"X-CSRF-Token"`

	// ReplayWindow bounds how long a completed exchange is replayed across instances.
	ReplayWindow time.Duration `env:"PORTAL_REISSUE_REPLAY_WINDOW" envDefault:"10s"`

	// IPMaxFailures rejected or CSRF-failed reissues per client address within IPWindow
	// answer 429. Zero disables the throttle. It needs an audit store to count from.
	IPMaxFailures int           `env:"PORTAL_REISSUE_IP_MAX_FAILURES" envDefault:"20"`
	IPWindow      time.Duration `env:"PORTAL_REISSUE_IP_WINDOW"       envDefault:"5m"`

	TrustProxy bool `env:"PORTAL_TRUST_PROXY" envDefault:"false"`
}

// DefaultConfig returns the built-in settings without reading the environment.
func DefaultConfig() Config {
	return Config{
		UserPath:        "/auth/reissue",
		AdminPath:       "/admin/auth/reissue",
		RefreshHeader:   "X-Refresh-Token",
		UpstreamTimeout: 10 * time.Second,
		RequireCSRF:     true,
		CSRFHeader:      "X-CSRF-Token",
		ReplayWindow:    10 * time.Second,
		IPMaxFailures:   20,
		IPWindow:        5 * time.Minute,
	}
}

// LoadConfigFromEnv loads reissue settings with safe defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse reissue env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()

	c.UpstreamBaseURL = strings.TrimRight(strings.TrimSpace(c.UpstreamBaseURL), "/")
	if strings.TrimSpace(c.UserPath) == "" {
		c.UserPath = def.UserPath
	}
	if strings.TrimSpace(c.AdminPath) == "" {
		c.AdminPath = def.AdminPath
	}
	if strings.TrimSpace(c.RefreshHeader) == "" {
		c.RefreshHeader = def.RefreshHeader
	}
	if strings.TrimSpace(c.CSRFHeader) == "" {
		c.CSRFHeader = def.CSRFHeader
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = def.UpstreamTimeout
	}
	if c.ReplayWindow < 0 {
		c.ReplayWindow = 0
	}
	if c.IPMaxFailures < 0 {
		c.IPMaxFailures = 0
	}
	if c.IPWindow <= 0 {
		c.IPWindow = def.IPWindow
	}
}

// UpstreamPath returns the identity service route for ns.
func (c Config) UpstreamPath(ns credential.Namespace) string {
	if ns == credential.NamespaceAdmin {
		return c.AdminPath
	}
	return c.UserPath
}
