package credential

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"
)

func testCookies(t *testing.T) (*Cookies, time.Time) {
	t.Helper()
	cfg := DefaultConfig(NamespaceUser)
	cfg.CookieSecure = false
	c := NewCookies(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, now
}

func cookiesByName(res *http.Response) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, ck := range res.Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestCookiesWrite_RotatedRefresh(t *testing.T) {
	t.Parallel()

	c, now := testCookies(t)
	cfg := c.Config()

	rr := httptest.NewRecorder()
	if err := c.Write(rr, Issued{Access: "acc-2", Refresh: "ref-2"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := cookiesByName(rr.Result())
	if len(got) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(got))
	}

	access := got[cfg.AccessCookieName]
	refresh := got[cfg.RefreshCookieName]
	marker := got[cfg.MarkerCookieName]
	if access == nil || refresh == nil || marker == nil {
		t.Fatalf("missing cookie: %+v", got)
	}
	if access.Value != "acc-2" || refresh.Value != "ref-2" {
		t.Fatalf("unexpected values access=%q refresh=%q", access.Value, refresh.Value)
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatalf("credential cookies must be HttpOnly")
	}
	if marker.HttpOnly {
		t.Fatalf("presence marker must be readable by page script")
	}
	if marker.Value == "" || marker.Value == "ref-2" {
		t.Fatalf("marker must be a fresh opaque value, got %q", marker.Value)
	}

	if !access.Expires.Equal(now.Add(cfg.AccessTTL)) {
		t.Fatalf("access expires=%v want %v", access.Expires, now.Add(cfg.AccessTTL))
	}
	if !refresh.Expires.Equal(now.Add(cfg.RefreshTTL)) {
		t.Fatalf("refresh expires=%v want %v", refresh.Expires, now.Add(cfg.RefreshTTL))
	}
	if !access.Expires.Before(refresh.Expires) {
		t.Fatalf("access must expire before refresh")
	}
	if !marker.Expires.Equal(refresh.Expires) {
		t.Fatalf("marker must share the refresh expiry")
	}
}

func TestCookiesWrite_AccessOnlyLeavesRefreshAlone(t *testing.T) {
	t.Parallel()

	c, _ := testCookies(t)
	cfg := c.Config()

	rr := httptest.NewRecorder()
	if err := c.Write(rr, Issued{Access: "acc-2"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := cookiesByName(rr.Result())
	if len(got) != 1 || got[cfg.AccessCookieName] == nil {
		t.Fatalf("expected only the access cookie, got %+v", got)
	}
}

func TestCookiesRead(t *testing.T) {
	t.Parallel()

	c, _ := testCookies(t)
	cfg := c.Config()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/reissue", nil)
	if _, ok := c.Read(req); ok {
		t.Fatalf("expected no refresh credential")
	}

	req.AddCookie(&http.Cookie{Name: cfg.AccessCookieName, Value: "acc"})
	req.AddCookie(&http.Cookie{Name: cfg.RefreshCookieName, Value: " ref "})
	pair, ok := c.Read(req)
	if !ok {
		t.Fatalf("expected refresh credential")
	}
	if pair.Access != "acc" || pair.Refresh != "ref" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestCookiesMarkerValid(t *testing.T) {
	t.Parallel()

	c, _ := testCookies(t)
	cfg := c.Config()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/reissue", nil)
	if c.MarkerValid(req, "") {
		t.Fatalf("empty marker must not validate")
	}

	req.AddCookie(&http.Cookie{Name: cfg.MarkerCookieName, Value: "mark-abc"})
	if !c.MarkerValid(req, "mark-abc") {
		t.Fatalf("expected marker match")
	}
	if c.MarkerValid(req, "mark-abd") {
		t.Fatalf("expected marker mismatch")
	}
}

func TestCookiesClear(t *testing.T) {
	t.Parallel()

	c, _ := testCookies(t)
	rr := httptest.NewRecorder()
	c.Clear(rr)

	got := cookiesByName(rr.Result())
	if len(got) != 3 {
		t.Fatalf("expected 3 expired cookies, got %d", len(got))
	}
	for name, ck := range got {
		if ck.MaxAge >= 0 || ck.Value != "" {
			t.Fatalf("cookie %s not expired: %+v", name, ck)
		}
	}
}

func TestJarView_PresenceOnly(t *testing.T) {
	t.Parallel()

	c, _ := testCookies(t)
	c.now = time.Now

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			_ = c.Write(w, Issued{Access: "acc", Refresh: "ref"})
		case "/logout":
			c.Clear(w)
		}
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	view, err := NewJarView(jar, srv.URL, c.Config())
	if err != nil {
		t.Fatalf("NewJarView: %v", err)
	}
	client := &http.Client{Jar: jar}

	if view.HasRefresh() {
		t.Fatalf("expected empty jar")
	}

	res, err := client.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = res.Body.Close()

	if !view.HasRefresh() {
		t.Fatalf("expected refresh presence after login")
	}
	if m := view.Marker(); m == "" || m == "ref" {
		t.Fatalf("unexpected marker %q", m)
	}

	view.Clear()
	if view.HasRefresh() {
		t.Fatalf("expected no refresh presence after Clear")
	}
}

func TestNewJarView_RejectsBadInput(t *testing.T) {
	t.Parallel()

	jar, _ := cookiejar.New(nil)
	if _, err := NewJarView(nil, "http://localhost", DefaultConfig(NamespaceUser)); err == nil {
		t.Fatalf("expected error for nil jar")
	}
	if _, err := NewJarView(jar, "not a url", DefaultConfig(NamespaceUser)); err == nil {
		t.Fatalf("expected error for bad base url")
	}
}
