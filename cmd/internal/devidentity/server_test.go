package devidentity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(nil, newTestIssuer(t), Config{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func issue(t *testing.T, base, body string) Pair {
	t.Helper()
	res, err := http.Post(base+"/dev/issue", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("issue status %d", res.StatusCode)
	}
	var p Pair
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestServer_ResourceRequiresValidAccess(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	p := issue(t, srv.URL, `{"subject":"u-1"}`)

	if res := get(t, srv.URL+"/api/profile", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", res.StatusCode)
	}

	res := get(t, srv.URL+"/api/profile", http.Header{"Authorization": {"Bearer " + p.AccessToken}})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var body resourceResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Subject != "u-1" || body.Path != "/api/profile" {
		t.Fatalf("unexpected body: %+v", body)
	}

	// user credentials do not open admin resources
	if res := get(t, srv.URL+"/api/admin/users", http.Header{"Authorization": {"Bearer " + p.AccessToken}}); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on admin resource, got %d", res.StatusCode)
	}
}

func TestServer_ReissueRotates(t *testing.T) {
	t.Parallel()

	s, srv := newTestServer(t)
	p := issue(t, srv.URL, `{"subject":"u-1","expired":true}`)

	if res := get(t, srv.URL+"/api/profile", http.Header{"Authorization": {"Bearer " + p.AccessToken}}); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected expired access to be rejected, got %d", res.StatusCode)
	}

	res := get(t, srv.URL+"/auth/reissue", http.Header{"X-Refresh-Token": {p.RefreshToken}})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var next Pair
	if err := json.NewDecoder(res.Body).Decode(&next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" || next.RefreshToken == p.RefreshToken {
		t.Fatalf("unexpected rotated pair: %+v", next)
	}

	if res := get(t, srv.URL+"/api/profile", http.Header{"Authorization": {"Bearer " + next.AccessToken}}); res.StatusCode != http.StatusOK {
		t.Fatalf("expected rotated access to work, got %d", res.StatusCode)
	}

	res = get(t, srv.URL+"/auth/reissue", http.Header{"X-Refresh-Token": {p.RefreshToken}})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected consumed refresh to be rejected, got %d", res.StatusCode)
	}
	if got := res.Header.Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	if res := get(t, srv.URL+"/admin/auth/reissue", http.Header{"X-Refresh-Token": {next.RefreshToken}}); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected cross-namespace reissue to be rejected, got %d", res.StatusCode)
	}
	if got := s.Reissues(); got != 3 {
		t.Fatalf("expected 3 reissue calls, got %d", got)
	}
}

func TestServer_IssueValidation(t *testing.T) {
	t.Parallel()

	_, srv := newTestServer(t)
	for _, body := range []string{`{"subject":""}`, `{"subject":"x","namespace":"guest"}`, `not json`, `{"subject":"x","extra":1}`} {
		res, err := http.Post(srv.URL+"/dev/issue", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, res.StatusCode)
		}
	}
}
