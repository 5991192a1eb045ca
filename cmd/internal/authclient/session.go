package authclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/renewal"
)

// SessionConfig describes one namespace of a portal session.
type SessionConfig struct {
	// BaseURL is the portal origin, for example https://portal.example.com.
	BaseURL string
	// ReissuePath defaults to the namespace's reissue route.
	ReissuePath string
	// LoginURL is handed to the Navigator on termination.
	LoginURL string
	// Timeout bounds every raw request, including the reissue call.
	Timeout time.Duration

	Credential credential.Config
	Jar        http.CookieJar
	Navigator  Navigator
	Signals    Publisher
	Observer   renewal.Observer
	Logger     *slog.Logger
}

// ReissuePath returns the portal reissue route for ns.
func ReissuePath(ns credential.Namespace) string {
	if ns == credential.NamespaceAdmin {
		return "/api/admin/auth/reissue"
	}
	return "/api/auth/reissue"
}

// NewSession wires the credential view, coordinator, terminator and intercepted client for
// one namespace. Sessions for different namespaces may share a Jar; they never share a
// Coordinator.
func NewSession(cfg SessionConfig) (*Client, *renewal.Coordinator, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, nil, fmt.Errorf("authclient: base url required")
	}
	if cfg.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("authclient: cookie jar: %w", err)
		}
		cfg.Jar = jar
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ns := cfg.Credential.Namespace
	log = log.With("namespace", string(ns))

	view, err := credential.NewJarView(cfg.Jar, base, cfg.Credential)
	if err != nil {
		return nil, nil, err
	}

	raw := &http.Client{Jar: cfg.Jar, Timeout: cfg.Timeout}

	path := cfg.ReissuePath
	if path == "" {
		path = ReissuePath(ns)
	}
	reissuer := renewal.NewHTTPReissuer(raw, base+path, view.Marker)

	coord := renewal.NewCoordinator(reissuer,
		renewal.WithLogger(log),
		renewal.WithNamespace(string(ns)),
		renewal.WithObserver(cfg.Observer),
	)

	term := NewTerminator(cfg.Navigator, cfg.LoginURL,
		WithStore(view),
		WithSignals(cfg.Signals),
		WithTerminatorLogger(log),
	)

	client := NewClient(raw, coord, view, term,
		WithLogger(log),
		WithCompletionSignal(cfg.Signals),
	)
	return client, coord, nil
}
