package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"workfolio/cmd/internal/credential"
)

// newForwarder proxies /api/ resource calls to the resource API. The access credential travels
// upstream as a bearer token: an Authorization header the caller sent wins (renewal retries
// carry one), otherwise the namespace's access cookie is used. Portal cookies never leave.
func newForwarder(log *slog.Logger, base string, user, admin *credential.Cookies) (http.Handler, error) {
	if strings.TrimSpace(base) == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "api_unconfigured", "resource API is not configured")
		}), nil
	}
	target, err := url.Parse(base)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", base)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			in := pr.In
			out := pr.Out
			out.Header.Del("Cookie")

			if strings.TrimSpace(in.Header.Get("Authorization")) != "" {
				return
			}
			cookies := user
			if strings.HasPrefix(in.URL.Path, "/api/admin/") {
				cookies = admin
			}
			if pair, _ := cookies.Read(in); pair.Access != "" {
				out.Header.Set("Authorization", "Bearer "+pair.Access)
			}
		},
		ModifyResponse: func(res *http.Response) error {
			// Upstream session cookies are not the portal's to set.
			res.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("api.forward.fail", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "resource API unavailable")
		},
	}
	return rp, nil
}
