package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/ids"
	"workfolio/cmd/security/token"

	"github.com/caarlos0/env/v11"
	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "portal.auth.v1"

	wsDefaultSendQueueSize = 16
	wsMinSendQueueSize     = 4

	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// GatewayConfig controls the auth events socket.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept's origin verification. Development only.
	DevInsecure    bool     `env:"PORTAL_WS_DEV_INSECURE"    envDefault:"false"`
	OriginRequired bool     `env:"PORTAL_WS_ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins []string `env:"PORTAL_WS_ALLOWED_ORIGINS" envDefault:"http://localhost,http://127.0.0.1" envSeparator:","`

	WriteTimeout  time.Duration `env:"PORTAL_WS_WRITE_TIMEOUT" envDefault:"5s"`
	SendQueueSize int           `env:"PORTAL_WS_SEND_QUEUE"    envDefault:"16"`

	HeartbeatInterval time.Duration `env:"PORTAL_WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"PORTAL_WS_HEARTBEAT_TIMEOUT"  envDefault:"5s"`

	RateEvents int           `env:"PORTAL_WS_RATE_EVENTS" envDefault:"20"`
	RateWindow time.Duration `env:"PORTAL_WS_RATE_WINDOW" envDefault:"10s"`
}

// LoadGatewayConfigFromEnv loads socket settings with safe defaults.
func LoadGatewayConfigFromEnv() (GatewayConfig, error) {
	var cfg GatewayConfig
	if err := env.Parse(&cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("parse ws env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *GatewayConfig) normalize() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = wsDefaultSendQueueSize
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	out := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	c.AllowedOrigins = out
}

// Gateway is the WebSocket entrypoint for auth events.
type Gateway struct {
	log    *slog.Logger
	hub    *Hub
	cfg    GatewayConfig
	hasher token.Hasher

	// Derived for websocket.Accept, which authorizes same-host origins by itself but needs
	// host patterns for cross-origin requests.
	originPatterns []string
}

// NewGateway constructs a gateway. hasher must match the one the reissue endpoint uses so
// socket subscriptions and reissue notifications agree on keys.
func NewGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig, hasher token.Hasher) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	cfg.normalize()
	return &Gateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		hasher:         hasher,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// Hub returns the gateway's hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// EventsPath returns the socket route of ns.
func EventsPath(ns credential.Namespace) string {
	if ns == credential.NamespaceAdmin {
		return "/api/admin/auth/events"
	}
	return "/api/auth/events"
}

// Register mounts one socket route per cookie reader.
func (g *Gateway) Register(mux *http.ServeMux, cookies ...*credential.Cookies) {
	for _, c := range cookies {
		if c == nil {
			continue
		}
		mux.Handle(EventsPath(c.Namespace()), g.Handler(c))
	}
}

// Handler serves the socket for the namespace of cookies.
func (g *Gateway) Handler(cookies *credential.Cookies) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, cookies)
	})
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, cookies *credential.Cookies) {
	ns := cookies.Namespace()

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	pair, ok := cookies.Read(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	hash := g.hasher.Hex(pair.Refresh)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := ids.New(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(ns, sessionID, g.cfg.SendQueueSize)
	g.hub.Subscribe(ns, hash, client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(sessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case m := <-client.Send:
				if err := writeMessage(ctx, conn, m, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				if m.Type == TypeTerminated {
					shutdown(websocket.StatusNormalClosure, "session terminated")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		m, err := readMessage(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}
		if err := m.Validate(); err != nil {
			g.trySendError(client, "bad_message", err.Error())
			continue readLoop
		}

		switch m.Type {
		case TypeHello:
			ack := newMessage(TypeHelloAck, HelloAckPayload{SessionID: sessionID, Namespace: string(ns)}, time.Now().UTC())
			if !client.offer(ack) {
				shutdown(websocket.StatusPolicyViolation, "backpressure")
				break readLoop
			}
		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", m.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *Gateway) trySendError(client *Client, code, msg string) {
	_ = client.offer(newMessage(TypeError, ErrorPayload{Code: code, Message: msg}, time.Now().UTC()))
}

// ---- message IO ----

// errBadJSON marks an inbound frame that is not a JSON message.
var errBadJSON = errors.New("realtime: bad json")

func readMessage(ctx context.Context, conn *websocket.Conn) (Message, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Message{}, err
	}
	if mt != websocket.MessageText {
		return Message{}, fmt.Errorf("%w: binary frame", errBadJSON)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return m, nil
}

func writeMessage(parent context.Context, conn *websocket.Conn, m Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, errBadJSON) {
		return readErrBadJSON
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into websocket.Accept host patterns.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
