package credential

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(NamespaceUser)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(NamespaceUser), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFromEnv_AdminUsesOwnPrefix(t *testing.T) {
	t.Setenv("PORTAL_ACCESS_TTL", "5m")
	t.Setenv("PORTAL_ADMIN_ACCESS_TTL", "2m")
	t.Setenv("PORTAL_ADMIN_REFRESH_TTL", "1h")
	t.Setenv("PORTAL_ADMIN_COOKIE_SAMESITE", "strict")
	t.Setenv("PORTAL_ADMIN_COOKIE_SECURE", "false")

	cfg, err := LoadConfigFromEnv(NamespaceAdmin)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}

	want := DefaultConfig(NamespaceAdmin)
	want.AccessTTL = 2 * time.Minute
	want.RefreshTTL = time.Hour
	want.CookieSameSite = http.SameSiteStrictMode
	want.CookieSecure = false
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFromEnv_RejectsAccessOutlivingRefresh(t *testing.T) {
	t.Setenv("PORTAL_ACCESS_TTL", "2h")
	t.Setenv("PORTAL_REFRESH_TTL", "1h")

	_, err := LoadConfigFromEnv(NamespaceUser)
	if !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "equal ttls", mutate: func(c *Config) { c.RefreshTTL = c.AccessTTL }, want: ErrInvalidTTL},
		{name: "zero access", mutate: func(c *Config) { c.AccessTTL = 0 }, want: ErrInvalidTTL},
		{name: "duplicate names", mutate: func(c *Config) { c.MarkerCookieName = c.RefreshCookieName }, want: ErrInvalidCookieName},
		{name: "empty name", mutate: func(c *Config) { c.AccessCookieName = " " }, want: ErrInvalidCookieName},
		{name: "none without secure", mutate: func(c *Config) {
			c.CookieSameSite = http.SameSiteNoneMode
			c.CookieSecure = false
		}, want: ErrInvalidSameSite},
		{name: "unknown namespace", mutate: func(c *Config) { c.Namespace = "guest" }, want: ErrUnknownNamespace},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig(NamespaceUser)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{in: "strict", want: http.SameSiteStrictMode},
		{in: "LAX", want: http.SameSiteLaxMode},
		{in: "none", want: http.SameSiteNoneMode},
		{in: "default", want: http.SameSiteDefaultMode},
	}
	for _, tc := range tests {
		got, err := ParseSameSite(tc.in)
		if err != nil {
			t.Fatalf("ParseSameSite(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSameSite(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseSameSite("sometimes"); !errors.Is(err, ErrInvalidSameSite) {
		t.Fatalf("expected ErrInvalidSameSite, got %v", err)
	}
}

func TestDefaultConfig_NamespacesAreIndependent(t *testing.T) {
	user := DefaultConfig(NamespaceUser)
	admin := DefaultConfig(NamespaceAdmin)
	for _, pair := range [][2]string{
		{user.AccessCookieName, admin.AccessCookieName},
		{user.RefreshCookieName, admin.RefreshCookieName},
		{user.MarkerCookieName, admin.MarkerCookieName},
	} {
		if pair[0] == pair[1] {
			t.Fatalf("namespaces share cookie name %q", pair[0])
		}
	}
}
