package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const markerBytes = 32

// Pair is the credential pair as presented by a request.
// Access may be empty or expired; Refresh is empty when absent.
type Pair struct {
	Access  string
	Refresh string
}

// Issued is what the identity service returned from a reissue.
// An empty Refresh means the refresh credential was not rotated.
type Issued struct {
	Access  string
	Refresh string
}

// Cookies reads and writes one namespace's credential cookies.
type Cookies struct {
	cfg Config
	now func() time.Time
}

// NewCookies returns a writer for cfg. cfg should already be validated.
func NewCookies(cfg Config) *Cookies {
	return &Cookies{cfg: cfg, now: time.Now}
}

// Namespace returns the namespace this writer serves.
func (c *Cookies) Namespace() Namespace { return c.cfg.Namespace }

// Config returns the writer's configuration.
func (c *Cookies) Config() Config { return c.cfg }

// Read returns the credentials the request carries. ok reports whether a refresh credential
// is present.
func (c *Cookies) Read(r *http.Request) (Pair, bool) {
	if c == nil || r == nil {
		return Pair{}, false
	}
	p := Pair{
		Access:  cookieValue(r, c.cfg.AccessCookieName),
		Refresh: cookieValue(r, c.cfg.RefreshCookieName),
	}
	return p, p.Refresh != ""
}

// Marker returns the presence marker value, or "" when absent.
func (c *Cookies) Marker(r *http.Request) string {
	if c == nil || r == nil {
		return ""
	}
	return cookieValue(r, c.cfg.MarkerCookieName)
}

// MarkerValid reports whether presented equals the request's presence marker (double submit).
func (c *Cookies) MarkerValid(r *http.Request, presented string) bool {
	return secureStringEqual(c.Marker(r), strings.TrimSpace(presented))
}

// Write stores a reissued credential set. The access cookie is always rewritten; the refresh
// and marker cookies only when the refresh credential was rotated.
func (c *Cookies) Write(w http.ResponseWriter, in Issued) error {
	if c == nil || w == nil {
		return nil
	}
	now := c.now()

	if access := strings.TrimSpace(in.Access); access != "" {
		c.set(w, c.cfg.AccessCookieName, access, now.Add(c.cfg.AccessTTL), true)
	}

	refresh := strings.TrimSpace(in.Refresh)
	if refresh == "" {
		return nil
	}
	marker, err := newOpaqueToken(markerBytes)
	if err != nil {
		return err
	}
	refreshExp := now.Add(c.cfg.RefreshTTL)
	c.set(w, c.cfg.RefreshCookieName, refresh, refreshExp, true)
	c.set(w, c.cfg.MarkerCookieName, marker, refreshExp, false)
	return nil
}

// Clear expires all three cookies.
func (c *Cookies) Clear(w http.ResponseWriter) {
	if c == nil || w == nil {
		return
	}
	c.expire(w, c.cfg.AccessCookieName, true)
	c.expire(w, c.cfg.RefreshCookieName, true)
	c.expire(w, c.cfg.MarkerCookieName, false)
}

func (c *Cookies) set(w http.ResponseWriter, name, value string, exp time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  exp.UTC(),
		HttpOnly: httpOnly,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

func (c *Cookies) expire(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.cfg.CookieSecure,
		SameSite: c.cfg.CookieSameSite,
	})
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

func newOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = markerBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func secureStringEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
