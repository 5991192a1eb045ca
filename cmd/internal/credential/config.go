package credential

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Namespace identifies an independent set of credentials.
type Namespace string

const (
	NamespaceUser  Namespace = "user"
	NamespaceAdmin Namespace = "admin"
)

// Namespaces lists every namespace the portal serves.
var Namespaces = []Namespace{NamespaceUser, NamespaceAdmin}

// Valid reports whether ns is a known namespace.
func (ns Namespace) Valid() bool {
	return ns == NamespaceUser || ns == NamespaceAdmin
}

// EnvPrefix is the prefix of the namespace's environment variables.
func (ns Namespace) EnvPrefix() string {
	if ns == NamespaceAdmin {
		return "PORTAL_ADMIN_"
	}
	return "PORTAL_"
}

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config controls cookie names, scope and lifetimes for one namespace.
type Config struct {
	Namespace Namespace

	AccessCookieName  string
	RefreshCookieName string
	MarkerCookieName  string

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// cookieEnv holds raw env values; variable names are relative to Namespace.EnvPrefix.
type cookieEnv struct {
	AccessCookieName  string        `env:"ACCESS_COOKIE"`
	RefreshCookieName string        `env:"REFRESH_COOKIE"`
	MarkerCookieName  string        `env:"MARKER_COOKIE"`
	CookiePath        string        `env:"COOKIE_PATH"`
	CookieDomain      string        `env:"COOKIE_DOMAIN"`
	CookieSecure      *bool         `env:"COOKIE_SECURE"`
	CookieSameSite    string        `env:"COOKIE_SAMESITE"`
	AccessTTL         time.Duration `env:"ACCESS_TTL"`
	RefreshTTL        time.Duration `env:"REFRESH_TTL"`
}

// DefaultConfig returns the built-in settings for ns.
func DefaultConfig(ns Namespace) Config {
	prefix := "portal_"
	if ns == NamespaceAdmin {
		prefix = "portal_admin_"
	}
	return Config{
		Namespace:         ns,
		AccessCookieName:  prefix + "at",
		RefreshCookieName: prefix + "rt",
		MarkerCookieName:  prefix + "session",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		AccessTTL:         DefaultAccessTTL,
		RefreshTTL:        DefaultRefreshTTL,
	}
}

// LoadConfigFromEnv loads the namespace's cookie settings over DefaultConfig(ns).
func LoadConfigFromEnv(ns Namespace) (Config, error) {
	if !ns.Valid() {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}

	var raw cookieEnv
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: ns.EnvPrefix()}); err != nil {
		return Config{}, fmt.Errorf("parse %s credential env: %w", ns, err)
	}

	cfg := DefaultConfig(ns)
	if v := strings.TrimSpace(raw.AccessCookieName); v != "" {
		cfg.AccessCookieName = v
	}
	if v := strings.TrimSpace(raw.RefreshCookieName); v != "" {
		cfg.RefreshCookieName = v
	}
	if v := strings.TrimSpace(raw.MarkerCookieName); v != "" {
		cfg.MarkerCookieName = v
	}
	if v := strings.TrimSpace(raw.CookiePath); v != "" {
		cfg.CookiePath = v
	}
	cfg.CookieDomain = strings.TrimSpace(raw.CookieDomain)
	if raw.CookieSecure != nil {
		cfg.CookieSecure = *raw.CookieSecure
	}
	if v := strings.TrimSpace(raw.CookieSameSite); v != "" {
		mode, err := ParseSameSite(v)
		if err != nil {
			return Config{}, err
		}
		cfg.CookieSameSite = mode
	}
	if raw.AccessTTL > 0 {
		cfg.AccessTTL = raw.AccessTTL
	}
	if raw.RefreshTTL > 0 {
		cfg.RefreshTTL = raw.RefreshTTL
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations where the access credential would outlive the refresh
// credential or where cookie names collide.
func (c Config) Validate() error {
	if !c.Namespace.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, c.Namespace)
	}

	names := []string{c.AccessCookieName, c.RefreshCookieName, c.MarkerCookieName}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || strings.ContainsAny(n, " ;,=\t") {
			return fmt.Errorf("%w: %q", ErrInvalidCookieName, n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: %q used twice", ErrInvalidCookieName, n)
		}
		seen[n] = struct{}{}
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("%w (access=%s refresh=%s)", ErrInvalidTTL, c.AccessTTL, c.RefreshTTL)
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		return fmt.Errorf("%w: samesite=none requires secure cookies", ErrInvalidSameSite)
	}
	return nil
}

// ParseSameSite maps lax|strict|none|default to http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "default", "":
		return http.SameSiteDefaultMode, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSameSite, s)
	}
}
