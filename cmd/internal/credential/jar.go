package credential

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// JarView is the client-side view of the credential store. Like page script, it can see
// whether a refresh credential exists (through the presence marker) but never its value.
type JarView struct {
	jar  http.CookieJar
	base *url.URL
	cfg  Config
}

// NewJarView scopes jar to the portal at baseURL.
func NewJarView(jar http.CookieJar, baseURL string, cfg Config) (*JarView, error) {
	if jar == nil {
		return nil, fmt.Errorf("%w: nil cookie jar", ErrInvalidBaseURL)
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	scoped := *u
	scoped.Path = cfg.CookiePath
	if scoped.Path == "" {
		scoped.Path = "/"
	}
	scoped.RawQuery = ""
	scoped.Fragment = ""
	return &JarView{jar: jar, base: &scoped, cfg: cfg}, nil
}

// Namespace returns the namespace this view observes.
func (v *JarView) Namespace() Namespace { return v.cfg.Namespace }

// HasRefresh reports whether the store currently holds a refresh credential.
func (v *JarView) HasRefresh() bool {
	return v.Marker() != ""
}

// Marker returns the presence marker value, used as the CSRF header on reissue.
func (v *JarView) Marker() string {
	if v == nil {
		return ""
	}
	for _, ck := range v.jar.Cookies(v.base) {
		if ck.Name == v.cfg.MarkerCookieName {
			return strings.TrimSpace(ck.Value)
		}
	}
	return ""
}

// Clear drops every credential cookie of the namespace from the jar.
func (v *JarView) Clear() {
	if v == nil {
		return
	}
	expired := time.Unix(0, 0).UTC()
	var cookies []*http.Cookie
	for _, name := range []string{v.cfg.AccessCookieName, v.cfg.RefreshCookieName, v.cfg.MarkerCookieName} {
		cookies = append(cookies, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    v.base.Path,
			Domain:  v.cfg.CookieDomain,
			Expires: expired,
			MaxAge:  -1,
		})
	}
	v.jar.SetCookies(v.base, cookies)
}
