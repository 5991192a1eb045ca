// Package main provides a CI-friendly smoke test for portal credential renewal.
//
// Against a running portal and devidentity it validates:
//   - an expired access credential triggers exactly one renewal
//   - the original request is replayed and succeeds
//   - open event sockets receive auth.renewed
//   - a session with a revoked refresh credential is terminated
//   - renewal attempts are counted on the client-side registry
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"workfolio/cmd/internal/authclient"
	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/events"
	"workfolio/cmd/internal/metrics"
	"workfolio/cmd/internal/realtime"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "portal.auth.v1"
	maxReadBytes = 1 << 20 // 1MiB
	smokeMarker  = "smoke-marker"
)

type pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func main() {
	var (
		portalURL   = flag.String("portal", "http://127.0.0.1:8080", "Portal base URL")
		identityURL = flag.String("identity", "http://127.0.0.1:8081", "devidentity base URL")
		origin      = flag.String("origin", "http://localhost", "Origin header for the events socket")
		resource    = flag.String("resource", "/api/profile", "Resource path to request through the portal")
		timeout     = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateHTTPURL(*portalURL); err != nil {
		fatalf("invalid -portal: %v", err)
	}
	if err := validateHTTPURL(*identityURL); err != nil {
		fatalf("invalid -identity: %v", err)
	}

	root := context.Background()
	cfg := credential.DefaultConfig(credential.NamespaceUser)

	renewals, err := metrics.NewRenewal()
	if err != nil {
		fatalf("metrics: %v", err)
	}

	// 1) renewal with a live refresh credential
	p := mustIssue(root, *identityURL, *timeout)
	jar := mustSeedJar(*portalURL, cfg, p)

	sock := mustDialEvents(root, *portalURL, *origin, cfg, p.RefreshToken, *timeout)
	defer func() { _ = sock.Close(websocket.StatusNormalClosure, "bye") }()

	bus := events.NewBus(4)
	renewed, cancelRenewed := bus.Subscribe(events.CredentialsRenewed)
	defer cancelRenewed()

	client, coord, err := authclient.NewSession(authclient.SessionConfig{
		BaseURL:    *portalURL,
		LoginURL:   "/login",
		Timeout:    *timeout,
		Credential: cfg,
		Jar:        jar,
		Signals:    bus,
		Observer:   renewals,
		Navigator: authclient.NavigatorFunc(func(_ context.Context, loginURL string) {
			fatalf("session terminated unexpectedly (login=%s)", loginURL)
		}),
	})
	if err != nil {
		fatalf("session: %v", err)
	}

	status := mustGet(root, client, *portalURL+*resource, *timeout)
	if status != http.StatusOK {
		fatalf("resource: status=%d want=200", status)
	}
	if st := coord.Stats(); st.Started != 1 {
		fatalf("renewal attempts: got=%d want=1", st.Started)
	}
	select {
	case <-renewed:
	case <-time.After(*timeout):
		fatalf("no %s signal", events.CredentialsRenewed)
	}
	mustReadEvent(root, sock, realtime.TypeRenewed, *timeout)

	if got := renewals.Attempts(string(cfg.Namespace), "success"); got != 1 {
		fatalf("renewal metric success=%v want=1", got)
	}
	if *verbose {
		fmt.Printf("renewed: attempts=%d\n", coord.Stats().Started)
	}

	// 2) termination with a revoked refresh credential
	revoked := mustIssue(root, *identityURL, *timeout)
	revoked.RefreshToken = "revoked-" + revoked.RefreshToken

	terminated := make(chan string, 1)
	client2, _, err := authclient.NewSession(authclient.SessionConfig{
		BaseURL:    *portalURL,
		LoginURL:   "/login",
		Timeout:    *timeout,
		Credential: cfg,
		Jar:        mustSeedJar(*portalURL, cfg, revoked),
		Observer:   renewals,
		Navigator: authclient.NavigatorFunc(func(_ context.Context, loginURL string) {
			terminated <- loginURL
		}),
	})
	if err != nil {
		fatalf("session: %v", err)
	}

	status = mustGet(root, client2, *portalURL+*resource, *timeout)
	if status != http.StatusUnauthorized {
		fatalf("revoked resource: status=%d want=401", status)
	}
	select {
	case <-terminated:
	default:
		fatalf("revoked session was not terminated")
	}
	if !errors.Is(client2.Terminator().Err(), authclient.ErrRenewalRejected) {
		fatalf("termination reason: %v", client2.Terminator().Err())
	}
	if got := renewals.Attempts(string(cfg.Namespace), "rejected"); got != 1 {
		fatalf("renewal metric rejected=%v want=1", got)
	}

	fmt.Printf("OK: renewed once, replayed %s, revoked session terminated\n", *resource)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustIssue(parent context.Context, identityURL string, stepTimeout time.Duration) pair {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body := strings.NewReader(`{"subject":"smoke","namespace":"user","expired":true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(identityURL, "/")+"/dev/issue", body)
	if err != nil {
		fatalf("issue: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("issue: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		fatalf("issue: status=%d", res.StatusCode)
	}

	var p pair
	if err := json.NewDecoder(io.LimitReader(res.Body, maxReadBytes)).Decode(&p); err != nil {
		fatalf("issue: decode: %v", err)
	}
	return p
}

func mustSeedJar(portalURL string, cfg credential.Config, p pair) http.CookieJar {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	u, err := url.Parse(portalURL)
	if err != nil {
		fatalf("portal url: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{
		{Name: cfg.AccessCookieName, Value: p.AccessToken, Path: "/"},
		{Name: cfg.RefreshCookieName, Value: p.RefreshToken, Path: "/"},
		{Name: cfg.MarkerCookieName, Value: smokeMarker, Path: "/"},
	})
	return jar
}

func mustDialEvents(parent context.Context, portalURL, origin string, cfg credential.Config, refresh string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(portalURL, "/"), "http") + realtime.EventsPath(cfg.Namespace)

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Cookie", cfg.RefreshCookieName+"="+refresh)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("events connect: %v", err)
	}
	conn.SetReadLimit(maxReadBytes)

	hello, _ := json.Marshal(realtime.Message{V: realtime.Version, Type: realtime.TypeHello, TS: time.Now().UTC()})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		fatalf("events hello: %v", err)
	}
	mustReadEvent(parent, conn, realtime.TypeHelloAck, stepTimeout)
	return conn
}

func mustReadEvent(parent context.Context, conn *websocket.Conn, want string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("events read (want %s): %v", want, err)
		}
		var m realtime.Message
		if err := json.Unmarshal(data, &m); err != nil {
			fatalf("events decode: %v", err)
		}
		if m.Type == want {
			return
		}
	}
}

func mustGet(parent context.Context, c *authclient.Client, target string, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	res, err := c.Get(ctx, target)
	if err != nil {
		fatalf("GET %s: %v", target, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxReadBytes))
	return res.StatusCode
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
