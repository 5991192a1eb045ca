package reissue

import (
	"testing"
	"time"

	"workfolio/cmd/internal/credential"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORTAL_UPSTREAM_BASE_URL", "http://identity.internal:9000/")
	t.Setenv("PORTAL_UPSTREAM_TIMEOUT", "-1s")
	t.Setenv("PORTAL_REISSUE_REQUIRE_CSRF", "false")
	t.Setenv("PORTAL_REISSUE_REPLAY_WINDOW", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}

	want := DefaultConfig()
	want.UpstreamBaseURL = "http://identity.internal:9000"
	want.RequireCSRF = false
	want.ReplayWindow = 30 * time.Second
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigUpstreamPath(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.UpstreamPath(credential.NamespaceUser); got != "/auth/reissue" {
		t.Fatalf("user path=%q", got)
	}
	if got := cfg.UpstreamPath(credential.NamespaceAdmin); got != "/admin/auth/reissue" {
		t.Fatalf("admin path=%q", got)
	}
}
