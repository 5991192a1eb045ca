package devidentity

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinKeyBytes is the shortest accepted HS256 signing key.
const MinKeyBytes = 32

// Config configures the development identity service.
type Config struct {
	Addr          string        `env:"PORTAL_DEV_IDENTITY_ADDR"  envDefault:":8081"`
	SigningKey    string        `env:"PORTAL_DEV_SIGNING_KEY"`
	Issuer        string        `env:"PORTAL_DEV_ISSUER"         envDefault:"workfolio-dev"`
	AccessTTL     time.Duration `env:"PORTAL_DEV_ACCESS_TTL"     envDefault:"1m"`
	RefreshHeader string        `env:"PORTAL_DEV_REFRESH_HEADER" envDefault:"X-Refresh-Token"`
}

// LoadConfigFromEnv reads the dev identity settings. An empty signing key is left empty; the
// caller decides whether to generate one.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse dev identity env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	c.Issuer = strings.TrimSpace(c.Issuer)
	if c.Issuer == "" {
		c.Issuer = "workfolio-dev"
	}
	c.RefreshHeader = strings.TrimSpace(c.RefreshHeader)
	if c.RefreshHeader == "" {
		c.RefreshHeader = "X-Refresh-Token"
	}
}
